package cli

import (
	"context"
	"errors"

	"github.com/agrolink/agrolink/internal/client/client"
	"github.com/agrolink/agrolink/internal/client/services"
	"github.com/agrolink/agrolink/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts the user for a username and password and creates the
// account on the server. The password is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Register(ctx, userName, password); err != nil {
		return a.fail(ctx, "register", err)
	}

	a.printf("Success! You can now 'login'.\n")
	return nil
}

// Login prompts for credentials and authenticates.
//
// An online login is tried first. If the server is unavailable it falls back
// to offline login against the locally cached verifier, which unlocks cached
// conversation keys and the offline queue but no server calls. The resulting
// mode is:
//   - ModeOnline if online login succeeds,
//   - ModeOffline if offline login succeeds,
//   - ModeDisabled if both fail.
//
// An online session starts the offline queue retry loop.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	sess, err := a.authService.OnlineLogin(ctx, userName, password)
	switch {
	case err == nil:
		a.printf("Login successful\n")
		a.startSession(ctx, sess, ModeOnline)
		return nil

	case errors.Is(err, client.ErrUnavailable):
		a.printf("Server unavailable, trying offline login...\n")
		sess, err = a.authService.OfflineLogin(ctx, userName, password)
		if err != nil {
			a.printf("Offline login unsuccessful: %v\n", err)
			a.setMode(ModeDisabled)
			return err
		}
		a.printf("Offline login successful, messages will be queued\n")
		a.startSession(ctx, sess, ModeOffline)
		return nil

	default:
		a.printf("Login unsuccessful: %v\n", err)
		return err
	}
}

func (a *App) startSession(ctx context.Context, sess *services.Session, mode Mode) {
	a.closeChat()

	a.mu.Lock()
	a.session = sess
	a.mu.Unlock()

	a.messaging.SetSession(sess)
	a.setMode(mode)

	a.queue.StopRetry()
	if sess.Online {
		a.queue.StartRetry(ctx, a.messaging.FlushQueue)
	}
	if st := a.queue.Stats(); st.PendingMessages+st.PendingParticipants > 0 {
		a.printf("%d queued item(s) waiting to be sent\n", st.PendingMessages+st.PendingParticipants)
	}
}

// Logout clears locally cached auth data and forgets the session. Queued
// items stay on disk.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.ClearOfflineData(ctx); err != nil {
		return a.fail(ctx, "logout", err)
	}
	a.closeChat()
	a.queue.StopRetry()

	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
	a.messaging.SetSession(nil)

	a.printf("Logged out\n")
	return nil
}
