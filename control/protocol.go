package control

import (
	"fmt"
	"strings"
)

// Server-to-client lines. The wire protocol is newline-delimited UTF-8 text;
// these are the fixed literals and formats clients parse.
const (
	promptUsername      = "Enter your username:"
	lineAuthRequired    = "AUTH_REQUIRED"
	lineLoginSuccess    = "LOGIN_SUCCESS"
	lineLoginFail       = "LOGIN_FAIL"
	lineRegisterSuccess = "REGISTRATION_SUCCESS"
	lineRegisterFail    = "REGISTRATION_FAIL"
)

// commandPrefix starts every client command; anything else is chat text.
const commandPrefix = "/"

func welcomeLine(username string) string {
	return "Welcome " + username
}

func connectedUsersLine(users []string) string {
	return "Connected users: " + strings.Join(users, ",")
}

func chanMsgLine(channel, content string) string {
	return fmt.Sprintf("CHANMSG %s %s", channel, content)
}

func userListLine(channel string, users []string) string {
	return fmt.Sprintf("USERLIST %s %s", channel, strings.Join(users, ","))
}

func channelListLine(channels []string) string {
	return "CHANNELLIST " + strings.Join(channels, ",")
}

func logLine(text string) string {
	return "LOG:" + text
}

func privMsgLine(from, text string) string {
	return fmt.Sprintf("PRIVMSG %s: %s", from, text)
}

func avatarLine(username, encoded string) string {
	return fmt.Sprintf("AVATAR %s %s", username, encoded)
}

func userMsgLine(username, text string) string {
	return fmt.Sprintf("USERMSG %s %s", username, text)
}

func statusLine(username, code string) string {
	return fmt.Sprintf("STATUS %s %s", username, code)
}

func callStartLine(peer string) string {
	return "CALLSTART " + peer
}

func callEndLine(peer string) string {
	return "CALLEND " + peer
}

// parseCommand splits a client command line into its verb and argument rest.
// The leading sentinel is stripped and the verb lowercased.
func parseCommand(line string) (verb, rest string) {
	trimmed := strings.TrimPrefix(line, commandPrefix)
	verb, rest, _ = strings.Cut(trimmed, " ")
	return strings.ToLower(verb), strings.TrimSpace(rest)
}
