package main

import (
	"fmt"
	"strconv"
	"strings"

	"vandvik/models"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

var (
	app        *tview.Application
	pages      *tview.Pages
	flex       *tview.Flex
	sidebar    *tview.List
	chatView   *tview.TextView
	chipsView  *tview.TextView
	textArea   *tview.TextArea
	statusLine *tview.TextView
	helpView   *tview.TextView

	busy       = false
	restoring  = false
	errLine    string
	chips      []string
	sidebarIDs []string
	chipKeys   = []string{"F2", "F3", "F4", "F5"}

	focusSwitcher = map[tview.Primitive]tview.Primitive{}

	statusFmt = "F12 help; state: %s; mic: %s; speech: %s; model: %s"
	helpText  = `
[yellow]Esc[white]: send msg
[yellow]F2-F5[white]: send suggestion chip
[yellow]PgUp/Down[white]: switch focus
[yellow]Ctrl+n[white]: new chat
[yellow]Ctrl+r[white]: toggle mic
[yellow]Ctrl+t[white]: toggle speech
[yellow]Ctrl+o[white]: voice settings
[yellow]Enter[white] on chat list: open chat
[yellow]d[white] on chat list: delete chat

Press Enter to go back
`
)

// tuiSink feeds controller events back into the event loop. Every method
// is called off the UI goroutine, so QueueUpdateDraw never deadlocks.
type tuiSink struct{}

func (tuiSink) ConversationChanged(convoID string) {
	app.QueueUpdateDraw(func() {
		if convoID == store.ActiveID() {
			renderChat()
		}
		refreshSidebar()
	})
}

func (tuiSink) ConversationListChanged() {
	app.QueueUpdateDraw(func() {
		refreshSidebar()
		renderChat()
	})
}

func (tuiSink) TitleChanged(convoID, title string) {
	app.QueueUpdateDraw(refreshSidebar)
}

func (tuiSink) SuggestionsChanged(c []string) {
	app.QueueUpdateDraw(func() {
		chips = c
		renderChips()
	})
}

func (tuiSink) ErrorChanged(msg string) {
	app.QueueUpdateDraw(func() {
		errLine = msg
		updateStatusLine()
	})
}

func (tuiSink) InputRestored(text string) {
	app.QueueUpdateDraw(func() {
		restoring = true
		textArea.SetText(text, true)
		restoring = false
	})
}

func (tuiSink) TurnStateChanged(inFlight bool) {
	app.QueueUpdateDraw(func() {
		busy = inFlight
		updateStatusLine()
	})
}

func renderChat() {
	active, ok := store.Active()
	if !ok {
		chatView.SetText("")
		return
	}
	var sb strings.Builder
	for _, m := range active.Messages {
		if m.Author == models.AuthorUser {
			sb.WriteString("[yellow]<you>:[-] ")
		} else {
			sb.WriteString("[lime]<vandvik>:[-] ")
		}
		if m.Text == "" {
			sb.WriteString("[gray]...[-]")
		} else {
			sb.WriteString(tview.Escape(m.Text))
		}
		sb.WriteString("\n\n")
	}
	chatView.SetText(sb.String())
	chatView.ScrollToEnd()
}

func refreshSidebar() {
	sidebar.Clear()
	sidebarIDs = sidebarIDs[:0]
	activeID := store.ActiveID()
	for _, c := range store.List() {
		title := c.Title
		if c.ID == activeID {
			title = "> " + title
		}
		sidebar.AddItem(tview.Escape(title), "", 0, nil)
		sidebarIDs = append(sidebarIDs, c.ID)
	}
}

func renderChips() {
	if len(chips) == 0 {
		chipsView.SetText("")
		return
	}
	var sb strings.Builder
	for i, chip := range chips {
		if i >= len(chipKeys) {
			break
		}
		fmt.Fprintf(&sb, "[yellow]%s[-] %s  ", chipKeys[i], tview.Escape(chip))
	}
	chipsView.SetText(sb.String())
}

func updateStatusLine() {
	errText := errLine
	if configErr != "" {
		errText = configErr
	}
	if errText != "" {
		statusLine.SetText("[red]" + tview.Escape(errText) + "[-]")
		return
	}
	state := "idle"
	if busy {
		state = "thinking"
	}
	mic := "off"
	if recognizer != nil && recognizer.Listening() {
		mic = "on"
	}
	speech := "off"
	if ctl.SpeechEnabled() {
		speech = "on"
	}
	statusLine.SetText(fmt.Sprintf(statusFmt, state, mic, speech, cfg.Model))
}

// submitPrompt is a no-op while a turn runs or an error is displayed;
// editing the input clears the error and re-enables sending.
func submitPrompt(text string) {
	if busy || configErr != "" || errLine != "" {
		return
	}
	go ctl.Submit(text)
}

func sendChip(i int) {
	if i >= len(chips) {
		return
	}
	submitPrompt(chips[i])
}

func toggleMic() {
	if recognizer == nil {
		return
	}
	if recognizer.Listening() {
		go func() {
			recognizer.Stop()
			app.QueueUpdateDraw(updateStatusLine)
		}()
		return
	}
	ctl.CancelSpeech()
	restoring = true
	textArea.SetText("", true)
	restoring = false
	go func() {
		if err := recognizer.Start(); err != nil {
			logger.Error("failed to start speech input", "error", err)
			app.QueueUpdateDraw(func() {
				errLine = "Microphone is unavailable."
				updateStatusLine()
			})
			return
		}
		app.QueueUpdateDraw(updateStatusLine)
	}()
}

func openVoiceSettings() {
	if orator == nil {
		return
	}
	voices := orator.Voices()
	names := make([]string, len(voices))
	initial := 0
	for i, v := range voices {
		names[i] = v.Name
		if v.URI == voicePref.VoiceURI {
			initial = i
		}
	}
	form := tview.NewForm().
		AddDropDown("voice", names, initial, nil).
		AddInputField("rate", strconv.FormatFloat(voicePref.Rate, 'f', 1, 64), 5,
			tview.InputFieldFloat, nil)
	form.AddButton("save", func() {
		if idx, _ := form.GetFormItemByLabel("voice").(*tview.DropDown).GetCurrentOption(); idx >= 0 && idx < len(voices) {
			voicePref.VoiceURI = voices[idx].URI
		}
		rateText := form.GetFormItemByLabel("rate").(*tview.InputField).GetText()
		if rate, err := strconv.ParseFloat(rateText, 64); err == nil {
			voicePref.Rate = models.VoicePref{Rate: rate}.ClampedRate()
		}
		orator.SetVoice(voicePref.VoiceURI)
		orator.SetRate(voicePref.Rate)
		pref := voicePref
		go func() {
			if err := provider.SaveVoicePref(pref); err != nil {
				logger.Error("failed to save voice preference", "error", err)
			}
		}()
		pages.RemovePage("voice")
		app.SetFocus(textArea)
	})
	form.AddButton("cancel", func() {
		pages.RemovePage("voice")
		app.SetFocus(textArea)
	})
	form.SetBorder(true).SetTitle("voice settings")
	pages.AddPage("voice", modalCenter(form, 44, 11), true, true)
}

// modalCenter wraps a primitive so it floats over the main page.
func modalCenter(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

func init() {
	theme := tview.Theme{
		PrimitiveBackgroundColor:    tcell.ColorDefault,
		ContrastBackgroundColor:     tcell.ColorGray,
		MoreContrastBackgroundColor: tcell.ColorNavy,
		BorderColor:                 tcell.ColorGray,
		TitleColor:                  tcell.ColorRed,
		GraphicsColor:               tcell.ColorBlue,
		PrimaryTextColor:            tcell.ColorOlive,
		SecondaryTextColor:          tcell.ColorYellow,
		TertiaryTextColor:           tcell.ColorOrange,
		InverseTextColor:            tcell.ColorPurple,
		ContrastSecondaryTextColor:  tcell.ColorLime,
	}
	tview.Styles = theme
	app = tview.NewApplication()
	pages = tview.NewPages()
	sidebar = tview.NewList().ShowSecondaryText(false)
	sidebar.SetBorder(true).SetTitle("chats")
	sidebar.SetSelectedFunc(func(i int, mainText, secondary string, r rune) {
		if i < 0 || i >= len(sidebarIDs) {
			return
		}
		id := sidebarIDs[i]
		go ctl.SelectChat(id)
		app.SetFocus(textArea)
	})
	sidebar.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'd' || event.Key() == tcell.KeyDelete {
			i := sidebar.GetCurrentItem()
			if i >= 0 && i < len(sidebarIDs) {
				go ctl.DeleteChat(sidebarIDs[i])
			}
			return nil
		}
		return event
	})
	chatView = tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetChangedFunc(func() {
			app.Draw()
		})
	chatView.SetBorder(true).SetTitle("chat")
	chipsView = tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	textArea = tview.NewTextArea().
		SetPlaceholder("Type your prompt...")
	textArea.SetBorder(true).SetTitle("input")
	textArea.SetChangedFunc(func() {
		if restoring {
			return
		}
		go ctl.InputEdited()
	})
	statusLine = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	focusSwitcher[textArea] = chatView
	focusSwitcher[chatView] = sidebar
	focusSwitcher[sidebar] = textArea
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(chatView, 0, 40, false).
		AddItem(chipsView, 0, 3, false).
		AddItem(textArea, 0, 10, true).
		AddItem(statusLine, 0, 1, false)
	flex = tview.NewFlex().
		AddItem(sidebar, 28, 0, false).
		AddItem(right, 0, 1, true)
	helpView = tview.NewTextView().SetDynamicColors(true).SetText(helpText).
		SetDoneFunc(func(key tcell.Key) {
			pages.RemovePage("helpView")
		})
	helpView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyEnter:
			return event
		}
		return nil
	})
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		front, _ := pages.GetFrontPage()
		if front != "main" {
			return event
		}
		switch event.Key() {
		case tcell.KeyF12:
			pages.AddPage("helpView", helpView, true, true)
			return nil
		case tcell.KeyCtrlN:
			go ctl.NewChat()
			app.SetFocus(textArea)
			return nil
		case tcell.KeyCtrlR:
			if caps.SpeechInput {
				toggleMic()
			}
			return nil
		case tcell.KeyCtrlT:
			if caps.SpeechOutput {
				ctl.SetSpeechEnabled(!ctl.SpeechEnabled())
				updateStatusLine()
			}
			return nil
		case tcell.KeyCtrlO:
			openVoiceSettings()
			return nil
		case tcell.KeyF2:
			sendChip(0)
			return nil
		case tcell.KeyF3:
			sendChip(1)
			return nil
		case tcell.KeyF4:
			sendChip(2)
			return nil
		case tcell.KeyF5:
			sendChip(3)
			return nil
		case tcell.KeyEscape:
			if busy || configErr != "" || errLine != "" {
				return nil
			}
			msgText := textArea.GetText()
			if strings.TrimSpace(msgText) == "" {
				return nil
			}
			restoring = true
			textArea.SetText("", true)
			restoring = false
			submitPrompt(msgText)
			return nil
		case tcell.KeyPgUp, tcell.KeyPgDn:
			currentF := app.GetFocus()
			if next, ok := focusSwitcher[currentF]; ok {
				app.SetFocus(next)
			}
			return nil
		}
		return event
	})
	chips = ctl.Suggestions()
	renderChips()
	refreshSidebar()
	renderChat()
	updateStatusLine()
}
