package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oshokin/uwb-telemetry/internal/config"
)

var errSlotSyntax = errors.New("expected slot=value")

// liveSlotsValue collects repeated --live slot=port[@baud] flags.
type liveSlotsValue struct {
	slots *[]config.LiveSlot
}

func (v liveSlotsValue) String() string {
	if v.slots == nil {
		return ""
	}

	parts := make([]string, 0, len(*v.slots))

	for _, s := range *v.slots {
		part := fmt.Sprintf("%d=%s", s.Slot, s.Port)
		if s.BaudRate > 0 {
			part += "@" + strconv.Itoa(s.BaudRate)
		}

		parts = append(parts, part)
	}

	return strings.Join(parts, ",")
}

func (v liveSlotsValue) Set(s string) error {
	slot, err := parseLiveSlot(s)
	if err != nil {
		return err
	}

	*v.slots = append(*v.slots, slot)

	return nil
}

func (liveSlotsValue) Type() string {
	return "slot=port[@baud]"
}

// replaySlotsValue collects repeated --replay slot=file flags.
type replaySlotsValue struct {
	slots *[]config.ReplaySlot
}

func (v replaySlotsValue) String() string {
	if v.slots == nil {
		return ""
	}

	parts := make([]string, 0, len(*v.slots))
	for _, s := range *v.slots {
		parts = append(parts, fmt.Sprintf("%d=%s", s.Slot, s.File))
	}

	return strings.Join(parts, ",")
}

func (v replaySlotsValue) Set(s string) error {
	slot, file, err := splitSlot(s)
	if err != nil {
		return err
	}

	*v.slots = append(*v.slots, config.ReplaySlot{Slot: slot, File: file})

	return nil
}

func (replaySlotsValue) Type() string {
	return "slot=file"
}

// parseLiveSlot parses "2=COM4" or "2=/dev/ttyACM0@115200".
func parseLiveSlot(s string) (config.LiveSlot, error) {
	slot, port, err := splitSlot(s)
	if err != nil {
		return config.LiveSlot{}, err
	}

	live := config.LiveSlot{Slot: slot, Port: port}

	if at := strings.LastIndex(port, "@"); at >= 0 {
		baud, err := strconv.Atoi(port[at+1:])
		if err != nil || baud <= 0 {
			return config.LiveSlot{}, fmt.Errorf("invalid baud rate in %q", s)
		}

		live.Port, live.BaudRate = port[:at], baud
	}

	if live.Port == "" {
		return config.LiveSlot{}, fmt.Errorf("%w: empty port in %q", errSlotSyntax, s)
	}

	return live, nil
}

func splitSlot(s string) (int, string, error) {
	index, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(value) == "" {
		return 0, "", fmt.Errorf("%w, got %q", errSlotSyntax, s)
	}

	slot, err := strconv.Atoi(strings.TrimSpace(index))
	if err != nil {
		return 0, "", fmt.Errorf("invalid slot in %q: %w", s, err)
	}

	return slot, strings.TrimSpace(value), nil
}
