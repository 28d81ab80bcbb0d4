package player

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/ani/ani-gogo/logger"
)

var ErrNoPlayer = errors.New("you don't have any players to play the episode, try installing mpv or vlc")

type Player struct {
	bin string

	args func(url, title string, headers map[string]string) []string
}

var players = []Player{
	{
		bin: "mpv",
		args: func(u, t string, h map[string]string) []string {
			args := []string{"--force-media-title=" + t}
			if fields := headerFields(h); fields != "" {
				args = append(args, "--http-header-fields="+fields)
			}
			return append(args, u)
		},
	},
	{
		bin: "vlc",
		args: func(u, t string, h map[string]string) []string {
			args := []string{"--play-and-exit", "--meta-title=" + t}
			if ref := h["Referer"]; ref != "" {
				args = append(args, "--http-referrer="+ref)
			}
			return append(args, u)
		},
	},
}

func headerFields(h map[string]string) string {
	fields := make([]string, 0, len(h))
	for k, v := range h {
		fields = append(fields, k+": "+v)
	}
	return strings.Join(fields, ",")
}

func commandExists(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

// findPlayer returns the preferred player when installed, otherwise the
// first installed one in mpv, vlc order. "auto" and "" mean no preference.
func findPlayer(preferred string, exists func(string) bool) (Player, error) {
	if preferred != "" && preferred != "auto" {
		for _, p := range players {
			if p.bin == preferred && exists(p.bin) {
				return p, nil
			}
		}
	}
	for _, p := range players {
		if exists(p.bin) {
			return p, nil
		}
	}
	return Player{}, ErrNoPlayer
}

// External plays sources in an mpv or vlc process running in the
// background. A new Play replaces the running process.
type External struct {
	player  Player
	headers map[string]string
	log     *log.Logger

	mu     sync.Mutex
	title  string
	src    string
	cancel context.CancelFunc
	done   chan struct{}
}

func NewExternal(preferred string, headers map[string]string, l *log.Logger) (*External, error) {
	p, err := findPlayer(preferred, commandExists)
	if err != nil {
		return nil, err
	}
	return &External{player: p, headers: headers, log: logger.OrDefault(l)}, nil
}

func (e *External) Name() string {
	return e.player.bin
}

func (e *External) SetTitle(title string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.title = title
}

func (e *External) SetSource(url string) error {
	if url == "" {
		return errors.New("empty source")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = url
	return nil
}

func (e *External) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == "" {
		return errors.New("no source set")
	}
	e.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, e.player.bin, e.player.args(e.src, e.title, e.headers)...)
	if err := cmd.Start(); err != nil {
		cancel()
		return errors.WithMessagef(err, "starting %s", e.player.bin)
	}
	e.log.Info("player started", "player", e.player.bin, "title", e.title, "pid", cmd.Process.Pid)

	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	go func() {
		defer close(done)
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			e.log.Warn("player exited", "player", e.player.bin, "err", err)
		}
	}()
	return nil
}

func (e *External) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	return nil
}

func (e *External) stopLocked() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
}

// Done is closed when the current player process exits. It returns a
// closed channel when nothing is running.
func (e *External) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return e.done
}

func (e *External) String() string {
	return fmt.Sprintf("%s(%s)", e.player.bin, e.src)
}

// RunVideo plays url with the first installed player and blocks until the
// player exits.
func RunVideo(url, title string, headers map[string]string) error {
	e, err := NewExternal("auto", headers, nil)
	if err != nil {
		return err
	}
	e.SetTitle(title)
	if err := e.SetSource(url); err != nil {
		return err
	}
	if err := e.Play(); err != nil {
		return err
	}
	<-e.Done()
	return nil
}
