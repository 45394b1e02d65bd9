package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/dead_reckoning/internal/config"
	"github.com/relabs-tech/dead_reckoning/internal/reckon"
)

const lineHeight = 13

// displayData holds the latest point for the display loop.
type displayData struct {
	mu    sync.RWMutex
	point reckon.Point
	have  bool
	fixes int // corrected points since the last reset
}

func (d *displayData) handlePoint(payload []byte) {
	var p reckon.Point
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("display: point unmarshal error: %v", err)
		return
	}
	d.mu.Lock()
	d.point = p
	d.have = true
	if p.Corrected {
		d.fixes++
	}
	d.mu.Unlock()
}

func (d *displayData) handleControl(payload []byte) {
	if !isReset(payload) {
		return
	}
	d.mu.Lock()
	d.have = false
	d.fixes = 0
	d.mu.Unlock()
}

// lines returns the text shown on the 128x64 panel.
func (d *displayData) lines() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.have {
		return []string{"", "Dead reckoning", "Waiting..."}
	}
	fix := "-"
	if d.point.Corrected {
		fix = "FIX"
	}
	return []string{
		fmt.Sprintf("t:%8.2fs %s", d.point.T, fix),
		fmt.Sprintf("x:%8.2fm", d.point.X),
		fmt.Sprintf("y:%8.2fm", d.point.Y),
		fmt.Sprintf("h:%7.1fdeg", d.point.Heading*180/math.Pi),
		fmt.Sprintf("fixes: %d", d.fixes),
	}
}

func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, (i+1)*lineHeight-2)
		drawer.DrawString(line)
	}
	return img
}

// RunDisplay shows the latest live point on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, cfg.DisplayI2CAddr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := dev.Draw(dev.Bounds(), renderLines([]string{"", " Skidpad", " dead reckoning"}), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	client, err := connectMQTT("display", cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribe(client, "display", cfg.TopicTrajectory, data.handlePoint); err != nil {
		return err
	}
	if err := subscribe(client, "display", cfg.TopicControl, data.handleControl); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	ctx, stop := signalContext()
	defer stop()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return dev.Halt()
		case <-ticker.C:
			if err := dev.Draw(dev.Bounds(), renderLines(data.lines()), image.Point{}); err != nil {
				log.Printf("display: error updating display: %v", err)
			}
		}
	}
}
