package scanner

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

type replayRecord struct {
	Address     string            `json:"address"`
	RSSI        int16             `json:"rssi"`
	ServiceData map[string]string `json:"serviceData"`
}

// Replay feeds advertisements recorded as JSON lines, e.g.
//
//	{"address":"C4:7C:8D:6A:12:0B","rssi":-61,"serviceData":{"0000fff0-0000-1000-8000-00805f9b34fb":"000010b6000000000107e9"}}
//
// Blank lines are skipped. Malformed lines fail the replay with their line number.
type Replay struct {
	r   io.Reader
	now func() time.Time
}

func NewReplay(r io.Reader) *Replay {
	return &Replay{r: r, now: time.Now}
}

// Scan delivers every recorded advertisement and returns nil at end of input.
func (p *Replay) Scan(ctx context.Context, handle Handler) error {
	sc := bufio.NewScanner(p.r)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec replayRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return fmt.Errorf("replay line %d: %w", line, err)
		}
		adv := model.Advertisement{
			Address:    rec.Address,
			RSSI:       rec.RSSI,
			ReceivedAt: p.now(),
		}
		if len(rec.ServiceData) > 0 {
			adv.ServiceData = make(map[string][]byte, len(rec.ServiceData))
			for uuid, payload := range rec.ServiceData {
				data, err := hex.DecodeString(payload)
				if err != nil {
					return fmt.Errorf("replay line %d: service data %s: %w", line, uuid, err)
				}
				adv.ServiceData[strings.ToLower(uuid)] = data
			}
		}
		handle(adv)
	}
	return sc.Err()
}
