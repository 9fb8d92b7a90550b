package dialog

import (
	"github.com/dgellow/identity-bot/internal/bot"
	"github.com/dgellow/identity-bot/internal/idp"
)

// Commands sent back by the action menu buttons
const (
	CommandSignIn      = "SignIn"
	CommandShowProfile = "ShowProfile"
	CommandSignOut     = "SignOut"
	CommandBack        = "Back"
)

// CommandReset deletes everything stored for the conversation. It is
// understood from any dialog state.
const CommandReset = "Reset"

// ProviderPromptTitle heads the provider selection card
const ProviderPromptTitle = "Select an identity provider"

func menuButton(title, command string) bot.CardAction {
	return bot.CardAction{
		Type:        bot.ActionMessageBack,
		Title:       title,
		Value:       "{}",
		Text:        command,
		DisplayText: title,
	}
}

func actionMenu(displayName string) bot.Card {
	return bot.Card{
		Kind:  bot.CardThumbnail,
		Title: displayName,
		Buttons: []bot.CardAction{
			menuButton("Sign in", CommandSignIn),
			menuButton("Show profile", CommandShowProfile),
			menuButton("Sign out", CommandSignOut),
			menuButton("Back", CommandBack),
		},
	}
}

func signInCard(displayName, link string) bot.Card {
	return bot.Card{
		Kind: bot.CardHero,
		Text: "Click below to sign in to " + displayName,
		Buttons: []bot.CardAction{{
			Type:  bot.ActionSignIn,
			Title: "Sign in",
			Value: link,
		}},
	}
}

func providerPrompt(providers *idp.Registry) bot.Card {
	card := bot.Card{Kind: bot.CardThumbnail, Title: ProviderPromptTitle}
	for _, name := range providers.Names() {
		p, _ := providers.Get(name)
		if name == idp.NameAzureADv1 {
			card.Buttons = append(card.Buttons, menuButton("AzureAD (v1)", "AzureADv1"))
			continue
		}
		card.Buttons = append(card.Buttons, bot.CardAction{
			Type:  bot.ActionIMBack,
			Title: p.DisplayName(),
			Value: p.DisplayName(),
		})
	}
	return card
}

func profileCard(pc idp.ProfileCard) bot.Card {
	card := bot.Card{
		Kind:     bot.CardThumbnail,
		Title:    pc.Title,
		Subtitle: pc.Subtitle,
		Text:     pc.Text,
	}
	if pc.ImageURL != "" {
		card.Images = []bot.CardImage{{URL: pc.ImageURL, Alt: pc.ImageAlt}}
	}
	if pc.LinkURL != "" {
		card.Buttons = []bot.CardAction{{
			Type:  bot.ActionOpenURL,
			Title: pc.LinkTitle,
			Value: pc.LinkURL,
		}}
	}
	return card
}
