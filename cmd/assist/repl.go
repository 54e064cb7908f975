package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MohammadTaha536/mmd536/pkg/audio"
	"github.com/MohammadTaha536/mmd536/pkg/chat"
	"github.com/MohammadTaha536/mmd536/pkg/config"
	"github.com/MohammadTaha536/mmd536/pkg/core/types"
	"github.com/MohammadTaha536/mmd536/pkg/energy"
	"github.com/MohammadTaha536/mmd536/pkg/gateway"
	"github.com/MohammadTaha536/mmd536/pkg/radio"
	"github.com/MohammadTaha536/mmd536/pkg/store"
	"github.com/MohammadTaha536/mmd536/pkg/studio"
	"github.com/MohammadTaha536/mmd536/pkg/voice"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	botStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	alertStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	energyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("84"))
	linkStyle   = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("75"))
)

// app wires the interaction surfaces behind the REPL. Each surface
// keeps its own energy budget.
type app struct {
	logger *slog.Logger
	env    *config.Env
	blobs  *store.Store
	gw     *gateway.Client

	settings  types.Settings
	useSearch bool

	chatEnergy  *energy.Governor
	imageEnergy *energy.Governor
	voiceEnergy *energy.Governor

	chat   *chat.Session
	studio *studio.Studio
	voice  *voice.Session

	radio       *radio.Player
	radioSink   *ffplaySink
	radioVolume float64
}

func newApp(env *config.Env, logger *slog.Logger) (*app, error) {
	blobs, err := store.Open(env.StorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gw, err := gateway.NewClient(context.Background(), env.APIKey, gateway.WithLogger(logger))
	if err != nil {
		_ = blobs.Close()
		return nil, fmt.Errorf("init gateway: %w", err)
	}

	a := &app{
		logger:      logger,
		env:         env,
		blobs:       blobs,
		gw:          gw,
		settings:    config.LoadSettings(blobs, logger),
		chatEnergy:  energy.New(energy.Config{}),
		imageEnergy: energy.New(energy.Config{}),
		voiceEnergy: energy.New(energy.Config{}),
		radioVolume: 1.0,
	}
	a.chatEnergy.Start()
	a.imageEnergy.Start()
	a.voiceEnergy.Start()

	a.chat = chat.NewSession(gw, a.chatEnergy, blobs, logger)
	a.studio = studio.New(gw, a.imageEnergy, blobs, logger)
	a.voice = voice.New(gw, a.voiceEnergy, logger)
	return a, nil
}

func (a *app) close() {
	a.voice.Stop()
	if a.radio != nil {
		a.radio.Close()
	}
	if a.radioSink != nil {
		_ = a.radioSink.Close()
	}
	a.chatEnergy.Close()
	a.imageEnergy.Close()
	a.voiceEnergy.Close()
	_ = a.blobs.Close()
}

func (a *app) run() error {
	fmt.Println(titleStyle.Render("MMD ASSIST"))
	fmt.Println(dimStyle.Render("type a message, or /help for commands"))
	a.printHistory()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Print(userStyle.Render("you › "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := a.dispatch(line, scanner); quit {
				return nil
			}
			continue
		}
		a.sendChat(line)
	}
}

func (a *app) printHistory() {
	for _, msg := range a.chat.Messages() {
		a.printMessage(msg)
	}
}

func (a *app) printMessage(msg types.ChatMessage) {
	if msg.Role == types.RoleUser {
		fmt.Println(userStyle.Render("you › ") + msg.Text)
		return
	}
	fmt.Println(botStyle.Render(msg.Text))
	for _, link := range msg.GroundingURLs {
		label := link.Title
		if label == "" {
			label = link.URI
		}
		fmt.Println(dimStyle.Render("  ↗ ") + linkStyle.Render(label) + dimStyle.Render("  "+link.URI))
	}
}

func (a *app) sendChat(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reply, err := a.chat.Send(ctx, text, a.settings, a.useSearch)
	switch {
	case errors.Is(err, chat.ErrLowEnergy):
		fmt.Println(alertStyle.Render(fmt.Sprintf(
			"neural energy too low (%.0f/%.0f) — wait for recharge",
			a.chatEnergy.Level(), a.chatEnergy.Max())))
		if cd := a.chatEnergy.CooldownRemaining(); cd > 0 {
			fmt.Println(dimStyle.Render(fmt.Sprintf("cooldown: %ds remaining", cd)))
		}
		return
	case errors.Is(err, chat.ErrBusy):
		fmt.Println(alertStyle.Render("previous message is still being answered"))
		return
	case err != nil:
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	a.printMessage(reply)
}

// dispatch handles one slash command. It returns true when the REPL
// should exit.
func (a *app) dispatch(line string, scanner *bufio.Scanner) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		return true
	case "/help":
		a.printHelp()
	case "/search":
		a.useSearch = !a.useSearch
		if a.useSearch {
			fmt.Println(energyStyle.Render("web grounding on"))
		} else {
			fmt.Println(dimStyle.Render("web grounding off"))
		}
	case "/clear":
		fmt.Print(alertStyle.Render("clear the conversation memory? this cannot be undone [y/N]: "))
		if scanner.Scan() && strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
			if err := a.chat.Clear(); err != nil {
				fmt.Println(errorStyle.Render("clear failed: " + err.Error()))
			} else {
				fmt.Println(dimStyle.Render("memory cleared"))
			}
		} else {
			fmt.Println(dimStyle.Render("kept"))
		}
	case "/image":
		a.generateImage(arg)
	case "/live":
		a.runLive(scanner)
	case "/radio":
		a.handleRadio(arg)
	case "/energy":
		a.printEnergy()
	case "/set":
		a.handleSet(arg)
	default:
		fmt.Println(errorStyle.Render("unknown command, see /help"))
	}
	return false
}

func (a *app) printHelp() {
	rows := [][2]string{
		{"/search", "toggle web grounding for the next messages"},
		{"/clear", "wipe the conversation memory (asks first)"},
		{"/image <prompt>", "render an image into the gallery"},
		{"/live", "start a live voice session (Enter stops)"},
		{"/radio on|off|ava|javan|vol <0-100>", "control the radio"},
		{"/energy", "show the neural energy budgets"},
		{"/set <key> <value>", "change a setting (informal, norules, name, job, context, lang, tier, creativity, thinking, overclock)"},
		{"/exit", "leave"},
	}
	for _, row := range rows {
		fmt.Println("  " + userStyle.Render(row[0]) + "  " + dimStyle.Render(row[1]))
	}
}

func (a *app) generateImage(prompt string) {
	if prompt == "" {
		fmt.Println(errorStyle.Render("usage: /image <prompt>"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	fmt.Println(dimStyle.Render("rendering..."))
	outcome, err := a.studio.Generate(ctx, prompt, a.settings)
	switch {
	case errors.Is(err, studio.ErrLowEnergy):
		fmt.Println(alertStyle.Render(fmt.Sprintf(
			"neural energy too low (%.0f/%.0f) for a render",
			a.imageEnergy.Level(), a.imageEnergy.Max())))
		return
	case err != nil:
		fmt.Println(errorStyle.Render("render failed: " + err.Error()))
		return
	}
	if outcome.Refusal != "" {
		fmt.Println(alertStyle.Render("refused: ") + botStyle.Render(outcome.Refusal))
		return
	}

	name := fmt.Sprintf("mmd-art-%d.png", outcome.Image.Timestamp)
	if err := os.WriteFile(name, outcome.Image.PNG, 0o644); err != nil {
		fmt.Println(errorStyle.Render("could not save image: " + err.Error()))
		return
	}
	fmt.Println(energyStyle.Render("saved " + name))
}

func (a *app) runLive(scanner *bufio.Scanner) {
	mic, err := newMicInput()
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	speaker, err := newSpeakerOutput()
	if err != nil {
		_ = mic.Close()
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = a.voice.Start(ctx, a.settings, mic, speaker)
	cancel()
	switch {
	case errors.Is(err, voice.ErrLowEnergy):
		fmt.Println(alertStyle.Render(fmt.Sprintf(
			"neural energy too low (%.0f/%.0f) for a live session",
			a.voiceEnergy.Level(), a.voiceEnergy.Max())))
		return
	case err != nil:
		fmt.Println(errorStyle.Render("could not start voice session: " + err.Error()))
		return
	}

	fmt.Println(energyStyle.Render("live session active — speak, press Enter to hang up"))
	scanner.Scan()
	a.voice.Stop()

	if rec := a.voice.Recording(); len(rec) > 0 {
		name := fmt.Sprintf("mmd-voice-%d.wav", time.Now().Unix())
		if err := os.WriteFile(name, audio.WAV(rec, audio.PlaybackSampleRate, audio.MonoChannels), 0o644); err != nil {
			a.logger.Warn("voice recording save failed", "error", err)
		} else {
			fmt.Println(dimStyle.Render("session audio saved to " + name))
		}
	}

	transcripts := a.voice.Transcripts()
	if len(transcripts) == 0 {
		fmt.Println(dimStyle.Render("no transcript"))
		return
	}
	fmt.Println(dimStyle.Render("session log:"))
	for _, t := range transcripts {
		prefix := "assist › "
		style := botStyle
		if t.Role == types.RoleUser {
			prefix = "you › "
			style = userStyle
		}
		fmt.Println("  " + style.Render(prefix) + t.Text)
	}
}

func (a *app) handleRadio(arg string) {
	switch {
	case arg == "on":
		if a.radio == nil {
			sink, err := newFFplaySink(a.env.FFPlayBin, a.radioVolume)
			if err != nil {
				fmt.Println(errorStyle.Render(err.Error()))
				return
			}
			a.radioSink = sink
			a.radio = radio.NewPlayer(radio.NewHLSSource(sink, a.logger), a.settings.RadioStation, a.logger)
		}
		a.radio.SetPlaying(true)
		a.saveRadioState(true)
		fmt.Println(energyStyle.Render("radio on — " + a.radio.Station().Name))
	case arg == "off":
		if a.radio != nil {
			a.radio.SetPlaying(false)
		}
		a.saveRadioState(false)
		fmt.Println(dimStyle.Render("radio off"))
	case arg == "ava" || arg == "javan":
		id := types.StationID(arg)
		a.settings.RadioStation = id
		if a.radio != nil {
			a.radio.SetStation(id)
		}
		if err := config.SaveSettings(a.blobs, a.settings); err != nil {
			a.logger.Warn("settings save failed", "error", err)
		}
		fmt.Println(energyStyle.Render("station: " + radio.Stations[id].Name))
	case strings.HasPrefix(arg, "vol"):
		_, raw, _ := strings.Cut(arg, " ")
		pct, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || pct < 0 || pct > 100 {
			fmt.Println(errorStyle.Render("usage: /radio vol <0-100>"))
			return
		}
		a.radioVolume = float64(pct) / 100
		if a.radio != nil {
			a.radio.SetVolume(a.radioVolume)
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("volume %d%%", pct)))
	default:
		status := "off"
		if a.radio != nil {
			status = a.radio.Status().String()
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("radio: %s, station: %s", status, a.settings.RadioStation)))
	}
}

func (a *app) saveRadioState(playing bool) {
	a.settings.RadioPlaying = playing
	if err := config.SaveSettings(a.blobs, a.settings); err != nil {
		a.logger.Warn("settings save failed", "error", err)
	}
}

func (a *app) printEnergy() {
	print := func(name string, g *energy.Governor) {
		line := fmt.Sprintf("%-6s %5.1f / %.0f", name, g.Level(), g.Max())
		if cd := g.CooldownRemaining(); cd > 0 {
			line += fmt.Sprintf("  (cooldown %ds)", cd)
		} else if g.Charging() {
			line += "  (charging)"
		}
		fmt.Println("  " + energyStyle.Render(line))
	}
	print("chat", a.chatEnergy)
	print("image", a.imageEnergy)
	print("voice", a.voiceEnergy)
}

func (a *app) handleSet(arg string) {
	key, value, ok := strings.Cut(arg, " ")
	if !ok && key != "" {
		// boolean toggles may omit the value
		value = ""
	}
	value = strings.TrimSpace(value)

	parseBool := func() bool { return value == "" || value == "on" || value == "true" || value == "1" }

	switch key {
	case "informal":
		a.settings.Informal = parseBool()
	case "norules":
		a.settings.NoRules = parseBool()
		if a.settings.NoRules {
			fmt.Println(alertStyle.Render("unrestricted mode is best-effort instruction text, not a guarantee"))
		}
	case "name":
		a.settings.UserName = value
	case "job":
		a.settings.UserJob = value
	case "context":
		a.settings.UserContext = value
	case "lang":
		switch value {
		case "farsi", "english", "auto":
			a.settings.LanguageMode = types.LanguageMode(value)
		default:
			fmt.Println(errorStyle.Render("lang must be auto, farsi or english"))
			return
		}
	case "tier":
		switch value {
		case "flash", "pro":
			a.settings.ModelTier = types.ModelTier(value)
		default:
			fmt.Println(errorStyle.Render("tier must be flash or pro"))
			return
		}
	case "creativity":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			fmt.Println(errorStyle.Render("creativity must be between 0 and 1"))
			return
		}
		a.settings.AICreativity = f
	case "thinking":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			fmt.Println(errorStyle.Render("thinking must be a non-negative token budget"))
			return
		}
		a.settings.EnableThinking = n > 0
		a.settings.ThinkingBudget = int32(n)
	case "overclock":
		a.settings.SystemOverclock = parseBool()
	default:
		fmt.Println(errorStyle.Render("unknown setting, see /help"))
		return
	}

	if err := config.SaveSettings(a.blobs, a.settings); err != nil {
		fmt.Println(errorStyle.Render("could not save settings: " + err.Error()))
		return
	}
	fmt.Println(dimStyle.Render("saved"))
}
