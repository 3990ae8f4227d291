// Command posture-sim streams synthetic landmark frames over UDP, standing in
// for a real pose detector during development and load testing. It holds a
// neutral seated pose, then optionally drifts into a slouch so the full
// calibrate/monitor/alert path can be exercised end to end.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/posture.report/internal/landmark"
)

var (
	addr        = flag.String("addr", "127.0.0.1:5555", "UDP address the engine listens on")
	fps         = flag.Float64("fps", 15, "Frames per second to stream")
	jitter      = flag.Float64("jitter", 0.002, "Per-landmark positional noise")
	slouchAfter = flag.Duration("slouch-after", 0, "Start slouching after this long (0 = never)")
	slouchDepth = flag.Float64("slouch-depth", 0.25, "How far the shoulders drop when slouching")
)

func neutralPose() map[landmark.ID]landmark.Landmark {
	lm := func(x, y, z float64) landmark.Landmark {
		return landmark.Landmark{Point: landmark.Point{X: x, Y: y, Z: z}, Visibility: 0.97}
	}
	return map[landmark.ID]landmark.Landmark{
		landmark.Nose:          lm(0.50, 0.20, -0.30),
		landmark.LeftEye:       lm(0.47, 0.18, -0.28),
		landmark.RightEye:      lm(0.53, 0.18, -0.28),
		landmark.LeftEar:       lm(0.44, 0.20, -0.15),
		landmark.RightEar:      lm(0.56, 0.20, -0.15),
		landmark.LeftShoulder:  lm(0.40, 0.40, -0.10),
		landmark.RightShoulder: lm(0.60, 0.40, -0.10),
		landmark.LeftElbow:     lm(0.38, 0.60, -0.05),
		landmark.RightElbow:    lm(0.62, 0.60, -0.05),
		landmark.LeftHip:       lm(0.42, 0.80, 0.00),
		landmark.RightHip:      lm(0.58, 0.80, 0.00),
	}
}

func main() {
	flag.Parse()

	raddr, err := net.ResolveUDPAddr("udp", *addr)
	if err != nil {
		log.Fatalf("failed to resolve %s: %v", *addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()

	fmt.Printf("streaming synthetic frames to %s at %.1f fps\n", *addr, *fps)

	var frameCount int64
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			n := atomic.SwapInt64(&frameCount, 0)
			fmt.Printf("sent %d frames/sec\n", n)
		}
	}()

	start := time.Now()
	interval := time.Duration(float64(time.Second) / *fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for now := range ticker.C {
		frame := landmark.Frame{
			UnixNanos: now.UnixNano(),
			Landmarks: neutralPose(),
		}

		slouching := *slouchAfter > 0 && now.Sub(start) > *slouchAfter
		for id, lm := range frame.Landmarks {
			lm.X += (rand.Float64()*2 - 1) * *jitter
			lm.Y += (rand.Float64()*2 - 1) * *jitter
			lm.Z += (rand.Float64()*2 - 1) * *jitter * 0.5
			if slouching {
				switch id {
				case landmark.LeftShoulder, landmark.RightShoulder,
					landmark.LeftElbow, landmark.RightElbow:
					lm.Y += *slouchDepth
				}
			}
			frame.Landmarks[id] = lm
		}

		data, err := json.Marshal(&frame)
		if err != nil {
			log.Fatalf("failed to encode frame: %v", err)
		}
		if _, err := conn.Write(data); err != nil {
			log.Printf("send error: %v", err)
			continue
		}
		atomic.AddInt64(&frameCount, 1)
	}
}
