package discgo

import (
	"ichor/glycemia/defs"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/utils/sendpart"
)

// marshalSendData converts a message into what arikawa sends.
func marshalSendData(data defs.MessageData) api.SendMessageData {
	md := api.SendMessageData{
		Content: data.Content,
		Embeds:  make([]discord.Embed, 0, len(data.Embeds)),
		Files:   make([]sendpart.File, 0, len(data.Files)),
	}
	for _, e := range data.Embeds {
		md.Embeds = append(md.Embeds, toEmbed(e))
	}
	for _, f := range data.Files {
		md.Files = append(md.Files, sendpart.File{Name: f.Name, Reader: f.Reader})
	}
	if data.MentionEveryone {
		md.AllowedMentions = &api.AllowedMentions{
			Parse: []api.AllowedMentionType{api.AllowEveryoneMention},
		}
	}
	return md
}

func toEmbed(e defs.EmbedData) discord.Embed {
	de := discord.Embed{
		Title:       e.Title,
		Description: e.Description,
		Fields:      make([]discord.EmbedField, 0, len(e.Fields)),
	}
	for _, f := range e.Fields {
		de.Fields = append(de.Fields, discord.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return de
}

// unmarshalMessage is the inverse of marshalSendData, minus files.
func unmarshalMessage(msg discord.Message) defs.MessageData {
	md := defs.MessageData{
		Content: msg.Content,
		Embeds:  make([]defs.EmbedData, 0, len(msg.Embeds)),
	}
	for _, de := range msg.Embeds {
		md.Embeds = append(md.Embeds, fromEmbed(de))
	}
	return md
}

func fromEmbed(de discord.Embed) defs.EmbedData {
	e := defs.EmbedData{
		Title:       de.Title,
		Description: de.Description,
		Fields:      make([]defs.EmbedField, 0, len(de.Fields)),
	}
	for _, f := range de.Fields {
		e.Fields = append(e.Fields, defs.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return e
}
