// Command embersim runs a demo particle system and renders it live in the
// terminal.
//
// Keys: space pauses, r resets the simulation, d deactivates spawning,
// q quits.
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/dataset"
	"github.com/emberfx/ember/emitter"
	"github.com/emberfx/ember/system"
	"github.com/emberfx/ember/vm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#D96A2B")).
			Padding(0, 1)

	statStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	hotStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F"))
	midStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8700"))
	coldStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#870000"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	gridW = 72
	gridH = 22
	dt    = 1.0 / 30.0
)

func fountainDef() *emitter.Definition {
	spawn := &vm.FuncProgram{
		Name: "fountain.spawn",
		Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
			for i := 0; i < in.NumInstances; i++ {
				angle := rand.Float64()*0.9 - 0.45
				speed := 14 + rand.Float64()*6
				in.FloatOut[0][i] = gridW / 2
				in.FloatOut[1][i] = gridH - 1
				in.FloatOut[2][i] = 0
				in.FloatOut[3][i] = float32(math.Sin(angle) * speed)
				in.FloatOut[4][i] = float32(-math.Cos(angle) * speed)
				in.FloatOut[5][i] = 0
				in.FloatOut[6][i] = float32(2 + rand.Float64()*2) // lifetime
				in.FloatOut[7][i] = 0                             // age
			}
			return vm.ExecResult{NumInstancesOut: in.NumInstances}, nil
		},
	}
	update := &vm.FuncProgram{
		Name: "fountain.update",
		Run: func(_ context.Context, in *vm.ExecInput) (vm.ExecResult, error) {
			out := 0
			for i := 0; i < in.NumInstances; i++ {
				age := in.FloatIn[7][i] + dt
				if age >= in.FloatIn[6][i] {
					continue // expired
				}
				vy := in.FloatIn[4][i] + 20*dt
				in.FloatOut[0][out] = in.FloatIn[0][i] + in.FloatIn[3][i]*dt
				in.FloatOut[1][out] = in.FloatIn[1][i] + vy*dt
				in.FloatOut[2][out] = 0
				in.FloatOut[3][out] = in.FloatIn[3][i]
				in.FloatOut[4][out] = vy
				in.FloatOut[5][out] = 0
				in.FloatOut[6][out] = in.FloatIn[6][i]
				in.FloatOut[7][out] = age
				out++
			}
			return vm.ExecResult{NumInstancesOut: out}, nil
		},
	}
	return &emitter.Definition{
		Name:   "fountain",
		Target: ember.SimTargetCPU,
		Variables: []dataset.Variable{
			{Name: "Position", Type: dataset.Vec3},
			{Name: "Velocity", Type: dataset.Vec3},
			{Name: "Lifetime", Type: dataset.Float},
			{Name: "Age", Type: dataset.Float},
		},
		MaxParticles:  2000,
		SpawnRate:     120,
		SpawnProgram:  spawn,
		UpdateProgram: update,
	}
}

type tickMsg time.Time

type model struct {
	sim    *system.Simulation
	inst   *system.Instance
	paused bool
	frames int
}

func newModel() model {
	cfg := system.DefaultConfig()
	sim := system.NewSimulation(cfg)
	inst := system.NewInstance(cfg, "demo", fountainDef())
	sim.AddInstance(inst)
	return model{sim: sim, inst: inst}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.sim.Close()
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "r":
			for _, e := range m.inst.Emitters() {
				e.ResetSimulation()
				e.Activate()
			}
		case "d":
			for _, e := range m.inst.Emitters() {
				e.Deactivate()
			}
		}
		return m, nil
	case tickMsg:
		if !m.paused {
			m.sim.Tick(context.Background(), dt)
			m.frames++
		}
		return m, tick()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("embersim"))
	b.WriteByte('\n')

	grid := make([][]rune, gridH)
	heat := make([][]float32, gridH)
	for y := range grid {
		grid[y] = []rune(strings.Repeat(" ", gridW))
		heat[y] = make([]float32, gridW)
	}

	for _, e := range m.inst.Emitters() {
		buf := e.Data().GetCurrentData()
		if buf == nil {
			continue
		}
		for i := 0; i < buf.NumInstances(); i++ {
			p := buf.Vec3At("Position", i)
			x, y := int(p[0]), int(p[1])
			if x < 0 || x >= gridW || y < 0 || y >= gridH {
				continue
			}
			life := buf.FloatAt("Lifetime", i)
			age := buf.FloatAt("Age", i)
			f := float32(0)
			if life > 0 {
				f = 1 - age/life
			}
			grid[y][x] = '*'
			if f > heat[y][x] {
				heat[y][x] = f
			}
		}
	}

	for y := 0; y < gridH; y++ {
		for x := 0; x < gridW; x++ {
			c := string(grid[y][x])
			switch {
			case heat[y][x] > 0.66:
				c = hotStyle.Render(c)
			case heat[y][x] > 0.33:
				c = midStyle.Render(c)
			case grid[y][x] != ' ':
				c = coldStyle.Render(c)
			}
			b.WriteString(c)
		}
		b.WriteByte('\n')
	}

	for _, e := range m.inst.Emitters() {
		b.WriteString(statStyle.Render(fmt.Sprintf(
			"%s  state=%s  particles=%d  spawned=%d  age=%.1fs",
			e.Definition().Name, e.State(), e.GetNumParticles(),
			e.TotalSpawned(), e.Age())))
		b.WriteByte('\n')
	}
	b.WriteString(helpStyle.Render("space pause · r reset · d deactivate · q quit"))
	b.WriteByte('\n')
	return b.String()
}

func main() {
	if _, err := tea.NewProgram(newModel()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "embersim:", err)
		os.Exit(1)
	}
}
