package gateway

import "strings"

// CommandInfo describes one known console command for listing and
// autocomplete. Reference data only; the game server is the authority
// on what it actually accepts.
type CommandInfo struct {
	Name        string `json:"name"`
	Syntax      string `json:"syntax"`
	Description string `json:"description"`
	Category    string `json:"category"`
	AdminOnly   bool   `json:"admin_only"`
}

var commandRegistry = []CommandInfo{
	{Name: "ListPlayers", Syntax: "ListPlayers", Description: "List all players currently on the server with their IDs", Category: "info", AdminOnly: false},
	{Name: "ListSquads", Syntax: "ListSquads", Description: "List all squads on both teams", Category: "info", AdminOnly: false},
	{Name: "ShowCurrentMap", Syntax: "ShowCurrentMap", Description: "Show the current map and layer", Category: "info", AdminOnly: false},
	{Name: "ShowNextMap", Syntax: "ShowNextMap", Description: "Show the next map and layer in the rotation", Category: "info", AdminOnly: false},
	{Name: "AdminListDisconnectedPlayers", Syntax: "AdminListDisconnectedPlayers", Description: "List recently disconnected players and their IDs", Category: "info", AdminOnly: true},
	{Name: "AdminBroadcast", Syntax: "AdminBroadcast <message>", Description: "Send a message to every player on the server", Category: "chat", AdminOnly: true},
	{Name: "ChatToAdmin", Syntax: "ChatToAdmin <message>", Description: "Send a message to the admin chat channel", Category: "chat", AdminOnly: true},
	{Name: "AdminWarn", Syntax: "AdminWarn <name or id> <reason>", Description: "Warn a player with an on-screen message", Category: "moderation", AdminOnly: true},
	{Name: "AdminKick", Syntax: "AdminKick <name or id> <reason>", Description: "Kick a player from the server", Category: "moderation", AdminOnly: true},
	{Name: "AdminBan", Syntax: "AdminBan <name or id> <length> <reason>", Description: "Ban a player; length like 1d or 1m, 0 is permanent", Category: "moderation", AdminOnly: true},
	{Name: "AdminForceTeamChange", Syntax: "AdminForceTeamChange <name or id>", Description: "Move a player to the opposite team", Category: "moderation", AdminOnly: true},
	{Name: "AdminDisbandSquad", Syntax: "AdminDisbandSquad <team> <squad index>", Description: "Disband a squad on the given team", Category: "moderation", AdminOnly: true},
	{Name: "AdminRemovePlayerFromSquad", Syntax: "AdminRemovePlayerFromSquad <name or id>", Description: "Remove a player from their squad", Category: "moderation", AdminOnly: true},
	{Name: "AdminDemoteCommander", Syntax: "AdminDemoteCommander <name or id>", Description: "Demote a team's commander", Category: "moderation", AdminOnly: true},
	{Name: "AdminChangeLayer", Syntax: "AdminChangeLayer <layer>", Description: "End the match and switch to the given layer immediately", Category: "match", AdminOnly: true},
	{Name: "AdminSetNextLayer", Syntax: "AdminSetNextLayer <layer>", Description: "Set the layer to load after the current match", Category: "match", AdminOnly: true},
	{Name: "AdminRestartMatch", Syntax: "AdminRestartMatch", Description: "Restart the current match", Category: "match", AdminOnly: true},
	{Name: "AdminEndMatch", Syntax: "AdminEndMatch", Description: "End the current match and move to the next layer", Category: "match", AdminOnly: true},
	{Name: "AdminPauseMatch", Syntax: "AdminPauseMatch", Description: "Pause the current match", Category: "match", AdminOnly: true},
	{Name: "AdminUnpauseMatch", Syntax: "AdminUnpauseMatch", Description: "Resume a paused match", Category: "match", AdminOnly: true},
	{Name: "AdminSlomo", Syntax: "AdminSlomo <time dilation>", Description: "Set the game speed multiplier, 1.0 is normal", Category: "match", AdminOnly: true},
	{Name: "AdminSetMaxNumPlayers", Syntax: "AdminSetMaxNumPlayers <count>", Description: "Set the player cap", Category: "server", AdminOnly: true},
	{Name: "AdminSetServerPassword", Syntax: "AdminSetServerPassword <password>", Description: "Set or clear the server join password", Category: "server", AdminOnly: true},
	{Name: "AdminAlwaysValidPlacement", Syntax: "AdminAlwaysValidPlacement <0|1>", Description: "Toggle deployable placement validation", Category: "server", AdminOnly: true},
}

// Commands returns the full static command registry.
func Commands() []CommandInfo {
	out := make([]CommandInfo, len(commandRegistry))
	copy(out, commandRegistry)
	return out
}

// Lookup finds a command by exact, case-insensitive name.
func Lookup(name string) (CommandInfo, bool) {
	for _, ci := range commandRegistry {
		if strings.EqualFold(ci.Name, name) {
			return ci, true
		}
	}
	return CommandInfo{}, false
}

// Autocomplete suggests commands for partially-typed input. Matching
// is case-insensitive on the command name, prefix matches ranked ahead
// of substring matches. Once the first whitespace-delimited token is an
// exact command name, the suggestions collapse to that command alone so
// the console can show its syntax while arguments are typed.
func Autocomplete(partial string) []CommandInfo {
	trimmed := strings.TrimSpace(partial)
	if trimmed == "" {
		return Commands()
	}

	first := strings.Fields(trimmed)[0]
	if ci, ok := Lookup(first); ok {
		return []CommandInfo{ci}
	}

	needle := strings.ToLower(trimmed)
	var prefix, substr []CommandInfo
	for _, ci := range commandRegistry {
		name := strings.ToLower(ci.Name)
		switch {
		case strings.HasPrefix(name, needle):
			prefix = append(prefix, ci)
		case strings.Contains(name, needle):
			substr = append(substr, ci)
		}
	}
	return append(prefix, substr...)
}
