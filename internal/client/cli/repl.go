package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error

	List(ctx context.Context) error
	Chat(ctx context.Context, args []string) error
	Open(ctx context.Context, args []string) error
	Leave(ctx context.Context) error
	Send(ctx context.Context, args []string) error
	Typing(ctx context.Context) error
	Hide(ctx context.Context, args []string) error
	Archive(ctx context.Context, args []string) error
	AddParticipant(ctx context.Context, args []string) error
	Attach(ctx context.Context, args []string) error
	Save(ctx context.Context, args []string) error
	Queue(ctx context.Context, args []string) error
}

const helpLoggedIn = `Available commands:
  (l)ist                 conversations with unread counts
  chat <user id>         open the direct conversation with a user
  open <n | id>          open a conversation from the list
  close                  leave the open conversation
  (s)end [text]          send a message (multi-line prompt without text)
  typing                 tell the others you are typing
  hide <n>               hide message n from your view
  archive [n | id]       archive a conversation for yourself
  add <user id>          add a participant to the open conversation
  attach <path>          send an encrypted file
  save <n> [path]        download the attachment of message n
  queue [stats|flush|purge]
  logout, exit`

const helpLoggedOut = "Available commands: register, login, queue, exit"

// runREPL starts a simple read–eval–print loop for the AgroLink CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a' with the remaining tokens as
// arguments. The loop exits on scanner EOF, when ctx is done, or when the user
// types "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers print
// and report their own errors.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("agrolink %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "chat":
			_ = a.Chat(ctx, args)

		case "open":
			_ = a.Open(ctx, args)

		case "close":
			_ = a.Leave(ctx)

		case "s", "send":
			_ = a.Send(ctx, args)

		case "typing":
			_ = a.Typing(ctx)

		case "hide":
			_ = a.Hide(ctx, args)

		case "archive":
			_ = a.Archive(ctx, args)

		case "add":
			_ = a.AddParticipant(ctx, args)

		case "attach":
			_ = a.Attach(ctx, args)

		case "save":
			_ = a.Save(ctx, args)

		case "queue":
			_ = a.Queue(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
