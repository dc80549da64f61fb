package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/abihf/camgate/protocol"
)

func main() {
	position := flag.String("position", "", "camera position, front or back")
	timeout := flag.Duration("timeout", 0, "capture timeout, 0 uses the daemon default")
	flag.Parse()

	conn, err := net.Dial("unix", protocol.GetSockAddress())
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	err = protocol.WriteCaptureReq(conn, protocol.CaptureReq{
		Client:   "check",
		Position: *position,
		Timeout:  *timeout,
	})
	if err != nil {
		log.Fatal(err)
	}

	res, err := protocol.ReadRes(conn)
	if err != nil {
		log.Fatal(err)
	}

	println("Result", res.Status)
	if res.Status != protocol.StatusSuccess {
		println("Error", res.Error)
		return
	}

	summary, err := protocol.ParseCaptureSummary(res.Extras)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Attempt %s: %d samples, quality stddev %.4f\n", summary.Attempt, summary.SampleCount, summary.QualityVariance)
	for _, s := range []struct {
		name string
		protocol.Sample
	}{{"first", summary.First}, {"best", summary.Best}, {"last", summary.Last}} {
		fmt.Printf("  - %-5s %.3f at %s\n", s.name, s.Score, s.Timestamp.Format(time.StampMilli))
	}
}
