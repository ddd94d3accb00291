package discord

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/keshon/listenparty/internal/core"
)

// commandRate keeps registration well under Discord's rate limit.
var commandRate = rate.Every(50 * time.Millisecond)

// registerCommands syncs slash commands for a guild with Discord:
// deletes obsolete ones, creates/updates commands whose definition has changed.
func (b *Bot) registerCommands(guildID string) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}

	remote, err := b.dg.ApplicationCommands(appID, guildID)
	if err != nil {
		return fmt.Errorf("list commands: %w", err)
	}

	local := buildCommandDefinitions()
	hashes := b.cache.load(guildID)
	plan := planSync(local, remote, hashes)

	for _, rc := range plan.obsolete {
		b.log.Info("Deleting obsolete command", "guild", guildID, "command", rc.Name)
		if err := b.dg.ApplicationCommandDelete(appID, guildID, rc.ID); err != nil {
			b.log.Error("Failed to delete command", "guild", guildID, "command", rc.Name, "error", err)
			continue
		}
		delete(hashes, rc.Name)
	}

	if len(plan.changed) > 0 {
		b.log.Info("Registering changed commands", "guild", guildID, "count", len(plan.changed))
	}
	limiter := rate.NewLimiter(commandRate, 1)
	for _, def := range plan.changed {
		if err := limiter.Wait(context.Background()); err != nil {
			return err
		}
		if _, err := b.dg.ApplicationCommandCreate(appID, guildID, def); err != nil {
			b.log.Error("Failed to register command", "guild", guildID, "command", def.Name, "error", err)
			continue
		}
		hashes[def.Name] = hashCommand(def)
	}

	return b.cache.save(guildID, hashes)
}

type syncPlan struct {
	obsolete []*discordgo.ApplicationCommand
	changed  []*discordgo.ApplicationCommand
}

// planSync compares local definitions against what Discord has and what
// was registered last time. A command missing remotely is always sent.
func planSync(local, remote []*discordgo.ApplicationCommand, hashes map[string]string) syncPlan {
	var plan syncPlan

	localNames := make(map[string]bool, len(local))
	for _, d := range local {
		localNames[d.Name] = true
	}
	remoteNames := make(map[string]bool, len(remote))
	for _, rc := range remote {
		remoteNames[rc.Name] = true
		if !localNames[rc.Name] {
			plan.obsolete = append(plan.obsolete, rc)
		}
	}
	for _, d := range local {
		if !remoteNames[d.Name] || hashes[d.Name] != hashCommand(d) {
			plan.changed = append(plan.changed, d)
		}
	}
	return plan
}

// buildCommandDefinitions returns ApplicationCommand definitions for all registered commands.
func buildCommandDefinitions() []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, c := range core.AllCommands() {
		slash, ok := c.(core.SlashProvider)
		if !ok {
			continue
		}
		def := slash.SlashDefinition()
		if def == nil {
			continue
		}
		if def.Type == 0 {
			def.Type = discordgo.ChatApplicationCommand
		}
		defs = append(defs, def)
	}
	return defs
}

// appID returns the bot's application ID, fetching from Discord if not cached in State.
func (b *Bot) appID() (string, error) {
	if id := b.selfID(); id != "" {
		return id, nil
	}
	u, err := b.dg.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return u.ID, nil
}

// commandCache remembers the definition hashes last registered per guild.
type commandCache struct {
	mu  sync.Mutex
	dir string
}

func newCommandCache(dir string) *commandCache {
	return &commandCache{dir: dir}
}

func (c *commandCache) path(guildID string) string {
	return filepath.Join(c.dir, guildID+".json")
}

func (c *commandCache) load(guildID string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	if data, err := os.ReadFile(c.path(guildID)); err == nil {
		_ = json.Unmarshal(data, &out)
	}
	return out
}

func (c *commandCache) save(guildID string, hashes map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create command cache dir: %w", err)
	}
	data, err := json.MarshalIndent(hashes, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(guildID), data, 0644)
}

// hashCommand returns a deterministic SHA-1 of a command's stable fields.
func hashCommand(c *discordgo.ApplicationCommand) string {
	stable := map[string]interface{}{
		"name":        c.Name,
		"description": c.Description,
		"type":        c.Type,
	}
	if len(c.Options) > 0 {
		stable["options"] = normalizeOptions(c.Options)
	}
	data, _ := json.Marshal(stable)
	return fmt.Sprintf("%x", sha1.Sum(data))
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]interface{} {
	out := make([]map[string]interface{}, len(opts))
	for i, o := range opts {
		entry := map[string]interface{}{
			"name":        o.Name,
			"description": o.Description,
			"type":        o.Type,
			"required":    o.Required,
			"max_value":   o.MaxValue,
		}
		if o.MinValue != nil {
			entry["min_value"] = *o.MinValue
		}
		if len(o.Choices) > 0 {
			choices := make([]map[string]interface{}, len(o.Choices))
			for j, ch := range o.Choices {
				choices[j] = map[string]interface{}{"name": ch.Name, "value": ch.Value}
			}
			entry["choices"] = choices
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		out[i] = entry
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["name"].(string) < out[j]["name"].(string)
	})
	return out
}
