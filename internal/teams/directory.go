// Package teams maps team names to destination channel IDs. The directory is
// the single shared mutable registry of the bot: entries are seeded at
// startup and added (never removed) the first time an unknown team is
// routed.
package teams

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ChannelCreator is the provisioning capability the directory needs from the
// chat platform. platform.Gateway satisfies it.
type ChannelCreator interface {
	CreateChannel(ctx context.Context, name string, private bool) (string, error)
}

// Directory resolves team names to channel IDs, lazily provisioning a channel
// for teams it has never seen. Creation is serialized per team key so that
// concurrent requests for the same unseen team produce exactly one channel.
type Directory struct {
	creator ChannelCreator

	mu       sync.RWMutex
	channels map[string]string // team name (as registered) → channel ID
	display  map[string]string // action token → display name

	creating singleflight.Group
}

// New creates a directory seeded with the given team → channel ID mapping.
func New(creator ChannelCreator, seeds map[string]string) *Directory {
	d := &Directory{
		creator:  creator,
		channels: make(map[string]string, len(seeds)),
		display:  make(map[string]string),
	}
	d.Reseed(seeds)
	return d
}

// Reseed registers seed mappings, overwriting existing entries for the same
// names. Used at startup and on config reload.
func (d *Directory) Reseed(seeds map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, id := range seeds {
		if name == "" || id == "" {
			continue
		}
		d.channels[name] = id
		d.display[ActionToken(name)] = name
	}
}

// Resolve looks up the channel ID for a team name. It tries the exact name
// plus lower/upper/title-case variants, and never creates anything.
func (d *Directory) Resolve(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, variant := range []string{
		name,
		strings.ToLower(name),
		strings.ToUpper(name),
		titleCase(name),
	} {
		if id, ok := d.channels[variant]; ok {
			return id, true
		}
	}
	return "", false
}

// EnsureChannel resolves the channel for a team, creating one when the team is
// unknown. Two concurrent calls for the same unseen team are collapsed into a
// single creation; all callers observe the same channel ID. On creation
// failure the caller surfaces the error and falls back to manual hand-off
// rather than retrying.
func (d *Directory) EnsureChannel(ctx context.Context, name string) (string, error) {
	if id, ok := d.Resolve(name); ok {
		return id, nil
	}

	key := ChannelSlug(name)
	v, err, _ := d.creating.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a previous flight may have registered it.
		if id, ok := d.Resolve(name); ok {
			return id, nil
		}

		slog.Info("creating channel for team", "team", name, "channel_name", key)
		id, err := d.creator.CreateChannel(ctx, key, false)
		if err != nil {
			return "", fmt.Errorf("create channel for team %q: %w", name, err)
		}

		d.mu.Lock()
		d.channels[name] = id
		d.display[ActionToken(name)] = name
		d.mu.Unlock()

		slog.Info("created channel for team", "team", name, "channel", id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// HasChannel reports whether channelID belongs to a registered team.
func (d *Directory) HasChannel(channelID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, id := range d.channels {
		if id == channelID {
			return true
		}
	}
	return false
}

// RegisterDisplayName records the display name behind an action token so a
// later button click can recover it without parsing label text.
func (d *Directory) RegisterDisplayName(token, display string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.display[token] = display
}

// DisplayName returns the display name registered for an action token.
func (d *Directory) DisplayName(token string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.display[token]
	return name, ok
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9 ]+`)

// ChannelSlug normalizes a team name into a platform channel name:
// lower-cased, special characters stripped, spaces to hyphens.
func ChannelSlug(name string) string {
	s := nonAlnum.ReplaceAllString(strings.ToLower(name), "")
	s = strings.Join(strings.Fields(s), "-")
	return s
}

// ActionToken normalizes a team name for use in button action IDs and values:
// lower-cased, spaces to underscores.
func ActionToken(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func titleCase(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}
