package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"go.uber.org/zap"
)

type Prober struct {
	bin    string
	logger *zap.Logger
}

func NewProber(bin string, logger *zap.Logger) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{bin: bin, logger: logger}
}

func (p *Prober) Probe(ctx context.Context, path string) (entity.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, p.bin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type,width,height,avg_frame_rate,r_frame_rate,time_base,duration:format=duration",
		"-of", "json",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return entity.MediaInfo{}, fmt.Errorf("ffprobe: %w", err)
	}

	info, err := parseProbeOutput(output)
	if err != nil {
		return entity.MediaInfo{}, err
	}

	p.logger.Debug("media probed",
		zap.String("path", path),
		zap.Float64("duration", info.Duration.Seconds()),
		zap.Int32("timescale", info.Duration.Scale),
		zap.Float64("frame_rate", info.FrameRate),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
	)
	return info, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		TimeBase     string `json:"time_base"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbeOutput(data []byte) (entity.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return entity.MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}

		scale := timescale(s.TimeBase)
		durationStr := out.Format.Duration
		if !validNumber(durationStr) {
			durationStr = s.Duration
		}
		var seconds float64
		if validNumber(durationStr) {
			d, err := strconv.ParseFloat(strings.TrimSpace(durationStr), 64)
			if err != nil {
				return entity.MediaInfo{}, fmt.Errorf("parse duration: %w", err)
			}
			seconds = d
		}

		rate := parseRational(s.AvgFrameRate)
		if rate <= 0 {
			rate = parseRational(s.RFrameRate)
		}

		return entity.MediaInfo{
			Duration:  entity.MediaTimeFromSeconds(seconds, scale),
			Width:     s.Width,
			Height:    s.Height,
			FrameRate: rate,
			HasVideo:  true,
		}, nil
	}
	return entity.MediaInfo{}, entity.ErrNoVideoTrack
}

// timescale turns a time base such as "1/15360" into ticks per second.
func timescale(timeBase string) int32 {
	num, den, ok := strings.Cut(timeBase, "/")
	if !ok || strings.TrimSpace(num) != "1" {
		return entity.DefaultTimescale
	}
	d, err := strconv.ParseInt(strings.TrimSpace(den), 10, 32)
	if err != nil || d <= 0 {
		return entity.DefaultTimescale
	}
	return int32(d)
}

// parseRational parses ffprobe rates like "30000/1001"; "0/0" yields 0.
func parseRational(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0
		}
		return v
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func validNumber(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != "N/A"
}
