// Package routes maps upstream REST paths to the closed set of route
// variants the rate limiter and cache key off of.
package routes

import "strconv"

// Kind enumerates every distinct upstream endpoint family. The set is
// closed and defined by the upstream API.
type Kind uint8

const (
	KindApplicationCommand Kind = iota
	KindApplicationCommandID
	KindApplicationGuildCommand
	KindApplicationGuildCommandID
	KindChannelsID
	KindChannelsIDFollowers
	KindChannelsIDInvites
	KindChannelsIDMessages
	KindChannelsIDMessagesBulkDelete
	KindChannelsIDMessagesID
	KindChannelsIDMessagesIDCrosspost
	KindChannelsIDMessagesIDReactions
	KindChannelsIDMessagesIDReactionsUserIDType
	KindChannelsIDMessagesIDThreads
	KindChannelsIDPermissionsOverwriteID
	KindChannelsIDPins
	KindChannelsIDPinsMessageID
	KindChannelsIDRecipients
	KindChannelsIDThreadMembers
	KindChannelsIDThreads
	KindChannelsIDTyping
	KindChannelsIDWebhooks
	KindGateway
	KindGatewayBot
	KindGuilds
	KindGuildsID
	KindGuildsIDAuditLogs
	KindGuildsIDBans
	KindGuildsIDBansUserID
	KindGuildsIDChannels
	KindGuildsIDEmojis
	KindGuildsIDEmojisID
	KindGuildsIDIntegrations
	KindGuildsIDIntegrationsID
	KindGuildsIDIntegrationsIDSync
	KindGuildsIDInvites
	KindGuildsIDMembers
	KindGuildsIDMembersID
	KindGuildsIDMembersIDRolesID
	KindGuildsIDMembersMeNick
	KindGuildsIDMembersSearch
	KindGuildsIDPreview
	KindGuildsIDPrune
	KindGuildsIDRegions
	KindGuildsIDRoles
	KindGuildsIDRolesID
	KindGuildsIDScheduledEvents
	KindGuildsIDScheduledEventsID
	KindGuildsIDScheduledEventsIDUsers
	KindGuildsIDStickers
	KindGuildsIDTemplates
	KindGuildsIDTemplatesCode
	KindGuildsIDThreads
	KindGuildsIDVanityURL
	KindGuildsIDVoiceStates
	KindGuildsIDWebhooks
	KindGuildsIDWelcomeScreen
	KindGuildsIDWidget
	KindGuildsTemplatesCode
	KindInteractionCallback
	KindInvitesCode
	KindOauthApplicationsMe
	KindStageInstances
	KindStickerPacks
	KindStickers
	KindUsersID
	KindUsersIDChannels
	KindUsersIDConnections
	KindUsersIDGuilds
	KindUsersIDGuildsID
	KindUsersIDGuildsIDMember
	KindVoiceRegions
	KindWebhooksID
	KindWebhooksIDToken
	KindWebhooksIDTokenMessagesID
)

// kindNames are human-readable route names used as telemetry labels.
var kindNames = map[Kind]string{
	KindApplicationCommand:                      "Application commands",
	KindApplicationCommandID:                    "Application command",
	KindApplicationGuildCommand:                 "Application commands in guild",
	KindApplicationGuildCommandID:               "Application command in guild",
	KindChannelsID:                              "Channel",
	KindChannelsIDFollowers:                     "Channel followers",
	KindChannelsIDInvites:                       "Channel invite",
	KindChannelsIDMessages:                      "Channel message",
	KindChannelsIDMessagesID:                    "Channel message",
	KindChannelsIDMessagesBulkDelete:            "Bulk delete message",
	KindChannelsIDMessagesIDCrosspost:           "Crosspost message",
	KindChannelsIDMessagesIDReactions:           "Message reaction",
	KindChannelsIDMessagesIDReactionsUserIDType: "Message reaction for user",
	KindChannelsIDMessagesIDThreads:             "Threads of a specific message",
	KindChannelsIDPermissionsOverwriteID:        "Channel permission override",
	KindChannelsIDPins:                          "Channel pins",
	KindChannelsIDPinsMessageID:                 "Specific channel pin",
	KindChannelsIDRecipients:                    "Channel recipients",
	KindChannelsIDThreadMembers:                 "Thread members",
	KindChannelsIDThreads:                       "Channel threads",
	KindChannelsIDTyping:                        "Typing indicator",
	KindChannelsIDWebhooks:                      "Webhook",
	KindGateway:                                 "Gateway",
	KindGatewayBot:                              "Gateway bot info",
	KindGuilds:                                  "Guilds",
	KindGuildsID:                                "Guild",
	KindGuildsIDAuditLogs:                       "Guild audit logs",
	KindGuildsIDBans:                            "Guild bans",
	KindGuildsIDBansUserID:                      "Guild ban for user",
	KindGuildsIDChannels:                        "Guild channel",
	KindGuildsIDEmojis:                          "Guild emoji",
	KindGuildsIDEmojisID:                        "Specific guild emoji",
	KindGuildsIDIntegrations:                    "Guild integrations",
	KindGuildsIDIntegrationsID:                  "Specific guild integration",
	KindGuildsIDIntegrationsIDSync:              "Sync guild integration",
	KindGuildsIDInvites:                         "Guild invites",
	KindGuildsIDMembers:                         "Guild members",
	KindGuildsIDMembersID:                       "Specific guild member",
	KindGuildsIDMembersIDRolesID:                "Guild member role",
	KindGuildsIDMembersMeNick:                   "Modify own nickname",
	KindGuildsIDMembersSearch:                   "Search guild members",
	KindGuildsIDPreview:                         "Guild preview",
	KindGuildsIDPrune:                           "Guild prune",
	KindGuildsIDRegions:                         "Guild region",
	KindGuildsIDRoles:                           "Guild roles",
	KindGuildsIDRolesID:                         "Specific guild role",
	KindGuildsIDScheduledEvents:                 "Scheduled events in guild",
	KindGuildsIDScheduledEventsID:               "Scheduled event in guild",
	KindGuildsIDScheduledEventsIDUsers:          "Users of a scheduled event",
	KindGuildsIDStickers:                        "Guild stickers",
	KindGuildsIDTemplates:                       "Guild templates",
	KindGuildsIDTemplatesCode:                   "Specific guild template",
	KindGuildsIDThreads:                         "Guild threads",
	KindGuildsIDVanityURL:                       "Guild vanity invite",
	KindGuildsIDVoiceStates:                     "Guild voice states",
	KindGuildsIDWebhooks:                        "Guild webhooks",
	KindGuildsIDWelcomeScreen:                   "Guild welcome screen",
	KindGuildsIDWidget:                          "Guild widget",
	KindGuildsTemplatesCode:                     "Specific guild template",
	KindInteractionCallback:                     "Interaction callback",
	KindInvitesCode:                             "Invite info",
	KindOauthApplicationsMe:                     "Current application info",
	KindStageInstances:                          "Stage instances",
	KindStickerPacks:                            "Sticker packs",
	KindStickers:                                "Stickers",
	KindUsersID:                                 "User info",
	KindUsersIDChannels:                         "User channels",
	KindUsersIDConnections:                      "User connections",
	KindUsersIDGuilds:                           "User in guild",
	KindUsersIDGuildsID:                         "Guild from user",
	KindUsersIDGuildsIDMember:                   "Member of a guild",
	KindVoiceRegions:                            "Voice region list",
	KindWebhooksID:                              "Webhook",
	KindWebhooksIDToken:                         "Webhook",
	KindWebhooksIDTokenMessagesID:               "Specific webhook message",
}

// Route is a classified request: an endpoint family plus the major
// parameters that participate in rate-limit bucketing. Minor ids
// (message ids, role ids, ...) are dropped during classification --
// they never influence the bucket.
type Route struct {
	Kind  Kind
	Major string // preformatted major-id component, "" when the family has none
}

// Name returns the route's display name for logs and metric labels.
func (r Route) Name() string { return kindNames[r.Kind] }

// BucketKey derives the local bucket identity: two requests share a
// bucket iff their Kind and major parameters are equal. The upstream's
// X-RateLimit-Bucket value is informational only; this key is
// authoritative for the coordinator.
func (r Route) BucketKey() string {
	if r.Major == "" {
		return strconv.Itoa(int(r.Kind))
	}
	return strconv.Itoa(int(r.Kind)) + ":" + r.Major
}
