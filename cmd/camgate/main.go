package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"

	"github.com/google/uuid"

	"github.com/abihf/camgate"
	"github.com/abihf/camgate/capture"
	"github.com/abihf/camgate/config"
)

func main() {
	if len(os.Args) != 2 {
		help()
	}
	switch os.Args[1] {
	case "capture":
		must(runCapture())
	case "devices":
		must(listDevices())
	default:
		help()
	}
}

func runCapture() error {
	conf := config.Load()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	detector, err := camgate.StartDetector(ctx, conf, nil)
	if err != nil {
		return err
	}
	defer detector.Close()

	opts, err := camgate.OptionsFromConfig(conf, detector, nil)
	if err != nil {
		return err
	}
	opts.AttemptID = uuid.NewString()
	batch, err := camgate.Capture(ctx, opts)
	if err != nil {
		return err
	}

	summary := camgate.Summarize(opts.AttemptID, batch)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary.Extras())
}

func listDevices() error {
	conf := config.Load()
	descs, err := conf.V4L2Devices()
	if err != nil {
		return err
	}
	hw := capture.NewV4L2(descs, capture.V4L2Options{})
	defer hw.Close()

	for _, pos := range []capture.Position{capture.PositionFront, capture.PositionBack} {
		devs := hw.Devices(pos)
		selected := capture.SelectDevice(devs, pos)
		for _, d := range devs {
			mark := " "
			if d == selected {
				mark = "*"
			}
			log.Printf("%s %-5s %-10s %s virtual=%t torch=%t\n", mark, pos, d.Type(), d.ID(), d.IsVirtual(), d.HasTorch())
		}
	}
	return nil
}

func must(err error) {
	if err != nil {
		panic(err.Error())
	}
}

func help() {
	log.Fatalf("Usage: %s <capture|devices>", os.Args[0])
}
