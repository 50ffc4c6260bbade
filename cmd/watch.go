// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cip/pkg/cip"
)

var (
	watchAnalog bool
	watchSerial bool
)

var watchCmd = &cobra.Command{
	Use:   "watch JOIN...",
	Short: "Live-monitor one or more joins in a terminal UI",
	Long: `watch connects, subscribes to the given joins, and renders their
values live as the processor broadcasts updates. Joins are digital
unless --analog or --serial is given, in which case every join listed
is watched as that signal type.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchAnalog, "analog", false, "watch the given joins as analog")
	watchCmd.Flags().BoolVar(&watchSerial, "serial", false, "watch the given joins as serial")
	rootCmd.AddCommand(watchCmd)
}

// programHandle is a mutex-guarded pointer to the running *tea.Program,
// so subscriber and lifecycle callbacks firing before the program
// starts (or after it stops) have somewhere safe to check in. Grounded
// on control.go's connectionManager get/set pattern.
type programHandle struct {
	mu sync.RWMutex
	p  *tea.Program
}

func (h *programHandle) set(p *tea.Program) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.p = p
}

func (h *programHandle) send(msg tea.Msg) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.p != nil {
		h.p.Send(msg)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchAnalog && watchSerial {
		return fmt.Errorf("--analog and --serial are mutually exclusive")
	}
	signalType := cip.SignalDigital
	switch {
	case watchAnalog:
		signalType = cip.SignalAnalog
	case watchSerial:
		signalType = cip.SignalSerial
	}

	joins := make([]cip.JoinID, len(args))
	for i, a := range args {
		j, err := parseJoin(a)
		if err != nil {
			return err
		}
		joins[i] = j
	}

	var prog programHandle
	cfg := baseConfig()
	cfg.OnConnectionState = func(s cip.ConnectionState) { prog.send(connStateMsg(s)) }
	cfg.OnRegistrationState = func(r bool) { prog.send(regStateMsg(r)) }

	client := cip.NewClient(cfg)
	for _, j := range joins {
		j := j
		client.Subscribe(signalType, j, func(_ cip.SignalType, join cip.JoinID, v cip.SignalValue) {
			prog.send(joinUpdateMsg{join: join, value: v})
		})
	}
	client.Connect(true)
	defer client.Close()

	m := newWatchModel(joins, signalType)
	p := tea.NewProgram(m, tea.WithAltScreen())
	prog.set(p)
	_, err := p.Run()
	return err
}

type joinUpdateMsg struct {
	join  cip.JoinID
	value cip.SignalValue
}

type connStateMsg cip.ConnectionState
type regStateMsg bool

type watchModel struct {
	joins      []cip.JoinID
	signalType cip.SignalType
	values     map[cip.JoinID]cip.SignalValue
	state      cip.ConnectionState
	registered bool
	tbl        table.Model
}

func newWatchModel(joins []cip.JoinID, signalType cip.SignalType) watchModel {
	sorted := append([]cip.JoinID(nil), joins...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	cols := []table.Column{
		{Title: "Join", Width: 8},
		{Title: "Value", Width: 20},
	}
	tbl := table.New(
		table.WithColumns(cols),
		table.WithRows(rowsFor(sorted, nil, signalType)),
		table.WithFocused(false),
		table.WithHeight(len(sorted)+1),
	)
	tbl.SetStyles(watchTableStyles())

	return watchModel{
		joins:      sorted,
		signalType: signalType,
		values:     make(map[cip.JoinID]cip.SignalValue, len(joins)),
		tbl:        tbl,
	}
}

func rowsFor(joins []cip.JoinID, values map[cip.JoinID]cip.SignalValue, signalType cip.SignalType) []table.Row {
	rows := make([]table.Row, len(joins))
	for i, j := range joins {
		val := "-"
		if v, ok := values[j]; ok {
			switch signalType {
			case cip.SignalDigital:
				val = fmt.Sprintf("%t", v.Bool)
			case cip.SignalAnalog:
				val = fmt.Sprintf("%d", v.U16)
			case cip.SignalSerial:
				val = v.String
			}
		}
		rows[i] = table.Row{strconv.Itoa(int(j)), val}
	}
	return rows
}

func watchTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true).Foreground(lipgloss.Color("205"))
	s.Cell = s.Cell.Foreground(lipgloss.Color("245"))
	s.Selected = lipgloss.NewStyle()
	return s
}

func (m watchModel) Init() tea.Cmd { return nil }

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case joinUpdateMsg:
		m.values[msg.join] = msg.value
		m.tbl.SetRows(rowsFor(m.joins, m.values, m.signalType))
	case connStateMsg:
		m.state = cip.ConnectionState(msg)
	case regStateMsg:
		m.registered = bool(msg)
	}
	return m, nil
}

var watchHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

func (m watchModel) View() string {
	status := fmt.Sprintf("%s  registered=%t", m.state, m.registered)
	header := watchHeaderStyle.Render(fmt.Sprintf("cipctl watch (%s)", m.signalType)) + "\n" + status + "\n\n"
	return header + m.tbl.View() + "\n\n(press q to quit)\n"
}
