package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownCommand is returned for an unrecognized wire prefix.
var ErrUnknownCommand = errors.New("room: unknown command")

// ErrParseFailed is returned when a recognized prefix has a malformed argument.
var ErrParseFailed = errors.New("room: failed to parse command argument")

// ClientPrefix identifies a recognized client-to-server wire frame.
type ClientPrefix string

const (
	PrefixPlay       ClientPrefix = "pl"
	PrefixPause      ClientPrefix = "pa"
	PrefixSuspend    ClientPrefix = "sp"
	PrefixUnsuspend  ClientPrefix = "up"
	PrefixChangeFile ClientPrefix = "cf"
)

// ClientCommand is a parsed client-to-server wire frame.
type ClientCommand struct {
	Prefix    ClientPrefix
	VideoTime float64 // pl, pa, sp, up
	FileInd   int     // cf
}

// ParseClientFrame parses "<prefix> <arg>" into a ClientCommand.
func ParseClientFrame(s string) (ClientCommand, error) {
	prefix, arg, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		prefix = s
		arg = ""
	}

	switch ClientPrefix(prefix) {
	case PrefixPlay, PrefixPause, PrefixSuspend, PrefixUnsuspend:
		t, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return ClientCommand{}, fmt.Errorf("%w: %v", ErrParseFailed, err)
		}
		return ClientCommand{Prefix: ClientPrefix(prefix), VideoTime: t}, nil
	case PrefixChangeFile:
		fi, err := strconv.Atoi(arg)
		if err != nil || fi < 0 {
			return ClientCommand{}, fmt.Errorf("%w: change-file index", ErrParseFailed)
		}
		return ClientCommand{Prefix: PrefixChangeFile, FileInd: fi}, nil
	default:
		return ClientCommand{}, fmt.Errorf("%w: %q", ErrUnknownCommand, prefix)
	}
}

// User is the advisory identity payload carried by uc/ua server frames. The
// core's correctness never depends on its contents.
type User struct {
	ConnID      int    `json:"conn_id"`
	DisplayName string `json:"display_name"`
}

// ServerCommand is a server-to-client wire frame ready to encode.
type ServerCommand struct {
	prefix string
	arg    string
}

func (c ServerCommand) Encode() string {
	return c.prefix + " " + c.arg
}

// EncodeStatus builds pl/pa/sp from a status kind and the observable video
// time, per spec §4.2 ("pl|pa|sp carry the observable video_time").
func EncodeStatus(kind Kind, videoTime float64) ServerCommand {
	var prefix string
	switch kind {
	case KindPlaying:
		prefix = string(PrefixPlay)
	case KindSuspended:
		prefix = string(PrefixSuspend)
	default:
		prefix = string(PrefixPause)
	}
	return ServerCommand{prefix: prefix, arg: strconv.FormatFloat(videoTime, 'f', -1, 64)}
}

// EncodeChangeFile builds a cf server frame.
func EncodeChangeFile(fileInd int) ServerCommand {
	return ServerCommand{prefix: string(PrefixChangeFile), arg: strconv.Itoa(fileInd)}
}

// EncodeUserConnected builds a uc server frame, sent to existing viewers
// when a new connection joins.
func EncodeUserConnected(u User) ServerCommand {
	return ServerCommand{prefix: "uc", arg: mustJSON(u)}
}

// EncodeUserDisconnected builds a ud server frame.
func EncodeUserDisconnected(connID int) ServerCommand {
	return ServerCommand{prefix: "ud", arg: strconv.Itoa(connID)}
}

// EncodeUsersSnapshot builds a ua server frame, sent to a newly joined
// connection so it can render the current viewer roster.
func EncodeUsersSnapshot(users []User) ServerCommand {
	return ServerCommand{prefix: "ua", arg: mustJSON(users)}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only plain structs of strings/ints ever reach here.
		return "null"
	}
	return string(b)
}
