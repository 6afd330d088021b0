package discgo

import (
	"context"
	"fmt"
	"ichor/glycemia/defs"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/session"
	"github.com/diamondburned/arikawa/v3/utils/json/option"
	"go.uber.org/zap"
)

const (
	DefaultMainChannel = "glycemia"
	batchLimit         = 100
)

type Discord struct {
	Session *session.Session
	Logger  *zap.Logger

	gid      discord.GuildID
	mid      discord.MessageID // Main message ID.
	mainCh   string
	channels map[string]discord.ChannelID
}

type Messager interface {
	SendMessage(data defs.MessageData, chName string) (uint64, error)
	UpdateMainMessage(data defs.MessageData) error
}

func New(cfg defs.DiscordConfig, logger *zap.Logger) (*Discord, error) {
	ses := session.NewWithIntents("Bot "+cfg.Token, gateway.IntentGuilds, gateway.IntentGuildMessages)
	if err := ses.Open(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to open session: %w", err)
	}

	sf, err := discord.ParseSnowflake(cfg.Guild)
	if err != nil {
		return nil, fmt.Errorf("unable to parse guild id: %w", err)
	}

	mainCh := cfg.Channel
	if mainCh == "" {
		mainCh = DefaultMainChannel
	}

	return &Discord{
		Session: ses,
		Logger:  logger,
		gid:     discord.GuildID(sf),
		mainCh:  mainCh,
	}, nil
}

// Setup makes sure the main channel and the given channels exist.
func (d *Discord) Setup(channels ...string) error {
	d.channels = make(map[string]discord.ChannelID)

	existChannels, err := d.Session.Channels(d.gid)
	if err != nil {
		return fmt.Errorf("unable to get channels: %w", err)
	}
	for _, ch := range existChannels {
		d.channels[ch.Name] = ch.ID
	}

	channels = append(channels, d.mainCh)
	for _, chName := range channels {
		if _, ok := d.channels[chName]; ok {
			continue
		}
		d.Logger.Debug("creating channel", zap.String("channel name", chName))
		ch, err := d.Session.CreateChannel(d.gid, api.CreateChannelData{
			Name: chName,
			Type: discord.GuildText,
		})
		if err != nil {
			return fmt.Errorf("unable to create channel %s: %w", chName, err)
		}
		d.channels[chName] = ch.ID
	}

	d.Logger.Debug("discord setup complete")
	return nil
}

func (d *Discord) Close() error {
	return d.Session.Close()
}

func (d *Discord) SendMessage(data defs.MessageData, chName string) (uint64, error) {
	chid, ok := d.channels[chName]
	if !ok {
		return 0, fmt.Errorf("unknown channel %q", chName)
	}
	msg, err := d.Session.SendMessageComplex(chid, marshalSendData(data))
	if err != nil {
		return 0, fmt.Errorf("unable to send message: %w", err)
	}
	d.Logger.Debug("sent message", zap.String("channel name", chName))
	return uint64(msg.ID), nil
}

func (d *Discord) GetMainMessage() (*defs.MessageData, error) {
	msg, err := d.Session.Message(d.channels[d.mainCh], d.mid)
	if err != nil {
		return nil, err
	}
	md := unmarshalMessage(*msg)
	return &md, nil
}

// UpdateMainMessage edits the pinned summary in the main channel, creating it
// when missing.
func (d *Discord) UpdateMainMessage(data defs.MessageData) error {
	if d.mid == 0 {
		return d.newMainMessage(data)
	}
	if _, err := d.GetMainMessage(); err != nil {
		d.Logger.Debug("main message missing, recreating", zap.Error(err))
		return d.newMainMessage(data)
	}

	md := marshalSendData(data)
	ed := api.EditMessageData{
		Content: option.NewNullableString(md.Content),
		Embeds:  &md.Embeds,
	}
	_, err := d.Session.EditMessageComplex(d.channels[d.mainCh], d.mid, ed)
	return err
}

func (d *Discord) newMainMessage(data defs.MessageData) error {
	if err := d.deleteMessages(d.channels[d.mainCh]); err != nil {
		return err
	}
	id, err := d.SendMessage(data, d.mainCh)
	if err != nil {
		return err
	}
	d.mid = discord.MessageID(id)
	return nil
}

func (d *Discord) deleteMessages(chid discord.ChannelID) error {
	for {
		msgs, err := d.Session.Messages(chid, batchLimit)
		if err != nil {
			return fmt.Errorf("unable to get messages: %w", err)
		}
		if len(msgs) == 0 {
			return nil
		}
		for _, msg := range msgs {
			if err = d.Session.DeleteMessage(chid, msg.ID, api.AuditLogReason("clearing")); err != nil {
				return fmt.Errorf("unable to delete message: %w", err)
			}
		}
	}
}
