package routes

import (
	"fmt"
	"strconv"
	"strings"

	proxy "github.com/eugener/shadowfax/internal"
)

// Normalize splits a raw request path into the api prefix and the
// endpoint path. A "/api/vN" prefix (N fitting in 8 bits) is preserved
// verbatim; anything else normalises to the bare "/api" prefix:
//
//	/api/v10/foo -> ("/api/v10", "/foo")
//	/api/foo     -> ("/api", "/foo")
//	/foo         -> ("/api", "/foo")
func Normalize(path string) (apiPrefix, trimmed string) {
	rest, ok := strings.CutPrefix(path, "/api")
	if !ok {
		return "/api", path
	}
	if after, versioned := strings.CutPrefix(rest, "/v"); versioned {
		i := 0
		for i < len(after) && after[i] >= '0' && after[i] <= '9' {
			i++
		}
		if i > 0 && (i == len(after) || after[i] == '/') {
			if _, err := strconv.ParseUint(after[:i], 10, 8); err == nil {
				cut := len("/api/v") + i
				return path[:cut], path[cut:]
			}
		}
	}
	return "/api", rest
}

// snowflake reports whether s is a plausible upstream id: non-empty,
// ASCII digits only.
func snowflake(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func invalidPath(m proxy.Method, trimmed string) error {
	return fmt.Errorf("%w: %s %s", proxy.ErrInvalidPath, m, trimmed)
}

// Classify matches the trimmed endpoint path against the closed route
// set and captures the major parameters. Unknown paths fail with
// ErrInvalidPath. The method participates only where the upstream
// accounts methods separately (per-message operations).
func Classify(m proxy.Method, trimmed string) (Route, error) {
	parts := strings.Split(strings.TrimPrefix(trimmed, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return Route{}, invalidPath(m, trimmed)
	}

	switch parts[0] {
	case "applications":
		return classifyApplications(m, trimmed, parts)
	case "channels":
		return classifyChannels(m, trimmed, parts)
	case "gateway":
		switch {
		case len(parts) == 1:
			return Route{Kind: KindGateway}, nil
		case len(parts) == 2 && parts[1] == "bot":
			return Route{Kind: KindGatewayBot}, nil
		}
	case "guilds":
		return classifyGuilds(m, trimmed, parts)
	case "interactions":
		if len(parts) == 4 && snowflake(parts[1]) && parts[2] != "" && parts[3] == "callback" {
			return Route{Kind: KindInteractionCallback, Major: parts[1]}, nil
		}
	case "invites":
		if len(parts) == 2 && parts[1] != "" {
			return Route{Kind: KindInvitesCode}, nil
		}
	case "oauth2":
		if len(parts) == 3 && parts[1] == "applications" && parts[2] == "@me" {
			return Route{Kind: KindOauthApplicationsMe}, nil
		}
	case "stage-instances":
		if len(parts) == 1 || (len(parts) == 2 && snowflake(parts[1])) {
			return Route{Kind: KindStageInstances}, nil
		}
	case "sticker-packs":
		if len(parts) == 1 {
			return Route{Kind: KindStickerPacks}, nil
		}
	case "stickers":
		if len(parts) == 1 || (len(parts) == 2 && snowflake(parts[1])) {
			return Route{Kind: KindStickers}, nil
		}
	case "users":
		return classifyUsers(m, trimmed, parts)
	case "voice":
		if len(parts) == 2 && parts[1] == "regions" {
			return Route{Kind: KindVoiceRegions}, nil
		}
	case "webhooks":
		return classifyWebhooks(m, trimmed, parts)
	}
	return Route{}, invalidPath(m, trimmed)
}

func classifyApplications(m proxy.Method, trimmed string, parts []string) (Route, error) {
	if len(parts) < 3 || !snowflake(parts[1]) {
		return Route{}, invalidPath(m, trimmed)
	}
	app := parts[1]
	switch parts[2] {
	case "commands":
		switch {
		case len(parts) == 3:
			return Route{Kind: KindApplicationCommand, Major: app}, nil
		case len(parts) == 4 && snowflake(parts[3]):
			return Route{Kind: KindApplicationCommandID, Major: app}, nil
		}
	case "guilds":
		if len(parts) >= 5 && snowflake(parts[3]) && parts[4] == "commands" {
			switch {
			case len(parts) == 5:
				return Route{Kind: KindApplicationGuildCommand, Major: app}, nil
			case len(parts) == 6 && snowflake(parts[5]):
				return Route{Kind: KindApplicationGuildCommandID, Major: app}, nil
			}
		}
	}
	return Route{}, invalidPath(m, trimmed)
}

func classifyChannels(m proxy.Method, trimmed string, parts []string) (Route, error) {
	if len(parts) < 2 || !snowflake(parts[1]) {
		return Route{}, invalidPath(m, trimmed)
	}
	ch := parts[1]
	if len(parts) == 2 {
		return Route{Kind: KindChannelsID, Major: ch}, nil
	}
	switch parts[2] {
	case "followers":
		if len(parts) == 3 {
			return Route{Kind: KindChannelsIDFollowers, Major: ch}, nil
		}
	case "invites":
		if len(parts) == 3 {
			return Route{Kind: KindChannelsIDInvites, Major: ch}, nil
		}
	case "messages":
		return classifyChannelMessages(m, trimmed, parts, ch)
	case "permissions":
		if len(parts) == 4 && snowflake(parts[3]) {
			return Route{Kind: KindChannelsIDPermissionsOverwriteID, Major: ch}, nil
		}
	case "pins":
		switch {
		case len(parts) == 3:
			return Route{Kind: KindChannelsIDPins, Major: ch}, nil
		case len(parts) == 4 && snowflake(parts[3]):
			return Route{Kind: KindChannelsIDPinsMessageID, Major: ch}, nil
		}
	case "recipients":
		if len(parts) == 3 || (len(parts) == 4 && snowflake(parts[3])) {
			return Route{Kind: KindChannelsIDRecipients, Major: ch}, nil
		}
	case "thread-members":
		if len(parts) == 3 || (len(parts) == 4 && parts[3] != "") {
			return Route{Kind: KindChannelsIDThreadMembers, Major: ch}, nil
		}
	case "threads":
		if len(parts) == 3 {
			return Route{Kind: KindChannelsIDThreads, Major: ch}, nil
		}
	case "typing":
		if len(parts) == 3 {
			return Route{Kind: KindChannelsIDTyping, Major: ch}, nil
		}
	case "webhooks":
		if len(parts) == 3 {
			return Route{Kind: KindChannelsIDWebhooks, Major: ch}, nil
		}
	}
	return Route{}, invalidPath(m, trimmed)
}

func classifyChannelMessages(m proxy.Method, trimmed string, parts []string, ch string) (Route, error) {
	switch {
	case len(parts) == 3:
		return Route{Kind: KindChannelsIDMessages, Major: ch}, nil
	case len(parts) == 4 && parts[3] == "bulk-delete":
		return Route{Kind: KindChannelsIDMessagesBulkDelete, Major: ch}, nil
	}
	if !snowflake(parts[3]) {
		return Route{}, invalidPath(m, trimmed)
	}
	if len(parts) == 4 {
		// Per-message operations are accounted per method upstream
		// (message deletes have their own window), so the method joins
		// the major component for this family only.
		return Route{Kind: KindChannelsIDMessagesID, Major: m.String() + " " + ch}, nil
	}
	switch parts[4] {
	case "crosspost":
		if len(parts) == 5 {
			return Route{Kind: KindChannelsIDMessagesIDCrosspost, Major: ch}, nil
		}
	case "reactions":
		switch {
		case len(parts) == 5 || len(parts) == 6:
			return Route{Kind: KindChannelsIDMessagesIDReactions, Major: ch}, nil
		case len(parts) == 7 && parts[5] != "" && parts[6] != "":
			return Route{Kind: KindChannelsIDMessagesIDReactionsUserIDType, Major: ch}, nil
		}
	case "threads":
		if len(parts) == 5 {
			return Route{Kind: KindChannelsIDMessagesIDThreads, Major: ch}, nil
		}
	}
	return Route{}, invalidPath(m, trimmed)
}

func classifyGuilds(m proxy.Method, trimmed string, parts []string) (Route, error) {
	if len(parts) == 1 {
		return Route{Kind: KindGuilds}, nil
	}
	if parts[1] == "templates" {
		if len(parts) == 3 && parts[2] != "" {
			return Route{Kind: KindGuildsTemplatesCode}, nil
		}
		return Route{}, invalidPath(m, trimmed)
	}
	if !snowflake(parts[1]) {
		return Route{}, invalidPath(m, trimmed)
	}
	g := parts[1]
	if len(parts) == 2 {
		return Route{Kind: KindGuildsID, Major: g}, nil
	}
	switch parts[2] {
	case "audit-logs":
		if len(parts) == 3 {
			return Route{Kind: KindGuildsIDAuditLogs, Major: g}, nil
		}
	case "bans":
		switch {
		case len(parts) == 3:
			return Route{Kind: KindGuildsIDBans, Major: g}, nil
		case len(parts) == 4 && snowflake(parts[3]):
			return Route{Kind: KindGuildsIDBansUserID, Major: g}, nil
		}
	case "channels":
		if len(parts) == 3 {
			return Route{Kind: KindGuildsIDChannels, Major: g}, nil
		}
	case "emojis":
		switch {
		case len(parts) == 3:
			return Route{Kind: KindGuildsIDEmojis, Major: g}, nil
		case len(parts) == 4 && snowflake(parts[3]):
			return Route{Kind: KindGuildsIDEmojisID, Major: g}, nil
		}
	case "integrations":
		switch {
		case len(parts) == 3:
			return Route{Kind: KindGuildsIDIntegrations, Major: g}, nil
		case len(parts) == 4 && snowflake(parts[3]):
			return Route{Kind: KindGuildsIDIntegrationsID, Major: g}, nil
		case len(parts) == 5 && snowflake(parts[3]) && parts[4] == "sync":
			return Route{Kind: KindGuildsIDIntegrationsIDSync, Major: g}, nil
		}
	case "invites":
		if len(parts) == 3 {
			return Route{Kind: KindGuildsIDInvites, Major: g}, nil
		}
	case "members":
		return classifyGuildMembers(m, trimmed, parts, g)
	case "preview":
		if len(parts) == 3 {
			return Route{Kind: KindGuildsIDPreview, Major: g}, nil
		}
	case "prune":
		if len(parts) == 3 {
			return Route{Kind: KindGuildsIDPrune, Major: g}, nil
		}
	case "regions":
		if len(parts) == 3 {
			return Route{Kind: KindGuildsIDRegions, Major: g}, nil
		}
	case "roles":
		switch {
		case len(parts) == 3:
			return Route{Kind: KindGuildsIDRoles, Major: g}, nil
		case len(parts) == 4 && snowflake(parts[3]):
			return Route{Kind: KindGuildsIDRolesID, Major: g}, nil
		}
	case "scheduled-events":
		switch {
		case len(parts) == 3:
			return Route{Kind: KindGuildsIDScheduledEvents, Major: g}, nil
		case len(parts) == 4 && snowflake(parts[3]):
			return Route{Kind: KindGuildsIDScheduledEventsID, Major: g}, nil
		case len(parts) == 5 && snowflake(parts[3]) && parts[4] == "users":
			return Route{Kind: KindGuildsIDScheduledEventsIDUsers, Major: g}, nil
		}
	case "stickers":
		if len(parts) == 3 || (len(parts) == 4 && snowflake(parts[3])) {
			return Route{Kind: KindGuildsIDStickers, Major: g}, nil
		}
	case "templates":
		switch {
		case len(parts) == 3:
			return Route{Kind: KindGuildsIDTemplates, Major: g}, nil
		case len(parts) == 4 && parts[3] != "":
			return Route{Kind: KindGuildsIDTemplatesCode, Major: g}, nil
		}
	case "threads":
		// Covers /threads/active.
		if len(parts) == 3 || (len(parts) == 4 && parts[3] == "active") {
			return Route{Kind: KindGuildsIDThreads, Major: g}, nil
		}
	case "vanity-url":
		if len(parts) == 3 {
			return Route{Kind: KindGuildsIDVanityURL, Major: g}, nil
		}
	case "voice-states":
		if len(parts) == 4 && parts[3] != "" {
			return Route{Kind: KindGuildsIDVoiceStates, Major: g}, nil
		}
	case "webhooks":
		if len(parts) == 3 {
			return Route{Kind: KindGuildsIDWebhooks, Major: g}, nil
		}
	case "welcome-screen":
		if len(parts) == 3 {
			return Route{Kind: KindGuildsIDWelcomeScreen, Major: g}, nil
		}
	case "widget":
		if len(parts) == 3 {
			return Route{Kind: KindGuildsIDWidget, Major: g}, nil
		}
	}
	return Route{}, invalidPath(m, trimmed)
}

func classifyGuildMembers(m proxy.Method, trimmed string, parts []string, g string) (Route, error) {
	switch {
	case len(parts) == 3:
		return Route{Kind: KindGuildsIDMembers, Major: g}, nil
	case len(parts) == 4 && parts[3] == "search":
		return Route{Kind: KindGuildsIDMembersSearch, Major: g}, nil
	case len(parts) == 5 && parts[3] == "@me" && parts[4] == "nick":
		return Route{Kind: KindGuildsIDMembersMeNick, Major: g}, nil
	case len(parts) == 4 && (snowflake(parts[3]) || parts[3] == "@me"):
		return Route{Kind: KindGuildsIDMembersID, Major: g}, nil
	case len(parts) == 6 && snowflake(parts[3]) && parts[4] == "roles" && snowflake(parts[5]):
		return Route{Kind: KindGuildsIDMembersIDRolesID, Major: g}, nil
	}
	return Route{}, invalidPath(m, trimmed)
}

func classifyUsers(m proxy.Method, trimmed string, parts []string) (Route, error) {
	if len(parts) < 2 || parts[1] == "" {
		return Route{}, invalidPath(m, trimmed)
	}
	switch {
	case len(parts) == 2:
		return Route{Kind: KindUsersID}, nil
	case len(parts) == 3 && parts[2] == "channels":
		return Route{Kind: KindUsersIDChannels}, nil
	case len(parts) == 3 && parts[2] == "connections":
		return Route{Kind: KindUsersIDConnections}, nil
	case len(parts) == 3 && parts[2] == "guilds":
		return Route{Kind: KindUsersIDGuilds}, nil
	case len(parts) == 4 && parts[2] == "guilds" && snowflake(parts[3]):
		return Route{Kind: KindUsersIDGuildsID}, nil
	case len(parts) == 5 && parts[2] == "guilds" && snowflake(parts[3]) && parts[4] == "member":
		return Route{Kind: KindUsersIDGuildsIDMember}, nil
	}
	return Route{}, invalidPath(m, trimmed)
}

func classifyWebhooks(m proxy.Method, trimmed string, parts []string) (Route, error) {
	if len(parts) < 2 || !snowflake(parts[1]) {
		return Route{}, invalidPath(m, trimmed)
	}
	wid := parts[1]
	switch {
	case len(parts) == 2:
		return Route{Kind: KindWebhooksID, Major: wid}, nil
	case len(parts) == 3 && parts[2] != "":
		// The webhook token is a major parameter alongside the id.
		return Route{Kind: KindWebhooksIDToken, Major: wid + "/" + parts[2]}, nil
	case len(parts) == 5 && parts[2] != "" && parts[3] == "messages" && (snowflake(parts[4]) || parts[4] == "@original"):
		return Route{Kind: KindWebhooksIDTokenMessagesID, Major: wid + "/" + parts[2]}, nil
	}
	return Route{}, invalidPath(m, trimmed)
}
