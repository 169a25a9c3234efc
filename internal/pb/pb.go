/*
 *     Copyright 2025 The CNAI Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pb

import (
	"fmt"
	"io"
	"sync"

	humanize "github.com/dustin/go-humanize"
	mpbv8 "github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// disableProgress suppresses bar rendering globally, set once at startup
// from the --no-progress flag.
var disableProgress bool

// SetDisableProgress toggles progress bar rendering.
func SetDisableProgress(disable bool) {
	disableProgress = disable
}

// NormalizePrompt normalizes the prompt string.
func NormalizePrompt(prompt string) string {
	return fmt.Sprintf("%s =>", prompt)
}

// ProgressBar is a progress bar.
type ProgressBar struct {
	mu   sync.RWMutex
	mpb  *mpbv8.Progress
	bars map[string]*progressBar
}

type progressBar struct {
	*mpbv8.Bar
	size int64
	msg  string
}

// NewProgressBar creates a new progress bar.
func NewProgressBar() *ProgressBar {
	p := &ProgressBar{
		bars: make(map[string]*progressBar),
	}

	if !disableProgress {
		p.mpb = mpbv8.New(mpbv8.WithWidth(60))
	}

	return p
}

// Add adds a new progress bar. The returned reader drives the bar when a
// reader is supplied; callers that poll sizes instead pass nil and update
// through SetCurrent.
func (p *ProgressBar) Add(prompt, name string, size int64, reader io.Reader) io.Reader {
	if p.mpb == nil {
		return reader
	}

	p.mu.RLock()
	oldBar := p.bars[name]
	p.mu.RUnlock()

	if oldBar != nil {
		return reader
	}

	// Create a new bar if it does not exist.
	bar := p.mpb.New(size,
		mpbv8.BarStyle(),
		mpbv8.BarFillerOnComplete("|"),
		mpbv8.PrependDecorators(
			decor.Any(func(s decor.Statistics) string {
				p.mu.RLock()
				defer p.mu.RUnlock()

				bar, ok := p.bars[name]
				if ok && bar.msg != "" {
					return bar.msg
				}

				return fmt.Sprintf("%s %s", prompt, name)
			}, decor.WCSyncSpaceR),
		),
		mpbv8.AppendDecorators(
			decor.OnComplete(decor.Counters(decor.SizeB1024(0), "% .2f / % .2f"), humanize.Bytes(uint64(size))),
			decor.OnComplete(decor.Name(" | ", decor.WCSyncWidthR), " | "),
			decor.OnComplete(
				decor.AverageSpeed(decor.SizeB1024(0), "% .2f", decor.WCSyncWidthR), "done",
			),
		),
	)

	p.mu.Lock()
	p.bars[name] = &progressBar{Bar: bar, size: size}
	p.mu.Unlock()

	if reader == nil {
		return nil
	}

	return bar.ProxyReader(reader)
}

// SetCurrent sets the current progress of the named bar.
func (p *ProgressBar) SetCurrent(name string, current int64) {
	if p.mpb == nil {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if bar, ok := p.bars[name]; ok {
		bar.Bar.SetCurrent(current)
	}
}

// SetTotal reconciles the named bar's estimated total with the actual size
// once it is known.
func (p *ProgressBar) SetTotal(name string, total int64) {
	if p.mpb == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if bar, ok := p.bars[name]; ok {
		bar.size = total
		bar.Bar.SetTotal(total, false)
	}
}

// Complete completes the progress bar.
func (p *ProgressBar) Complete(name string, msg string) {
	if p.mpb == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bar, ok := p.bars[name]
	if ok {
		bar.msg = msg
		bar.Bar.SetCurrent(bar.size)
	}
}

// Abort aborts the progress bar with the failure message.
func (p *ProgressBar) Abort(name string, err error) {
	if p.mpb == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bar, ok := p.bars[name]
	if ok {
		bar.msg = err.Error()
		bar.Bar.Abort(false)
	}
}

// Start starts the progress bar.
func (p *ProgressBar) Start() {}

// Stop waits for the progress bar to finish.
func (p *ProgressBar) Stop() {
	if p.mpb == nil {
		return
	}

	p.mpb.Shutdown()
}
