// gen-signals produces raw test media matching a cadence format spec:
// a sine tone for audio formats, a moving-bar pattern for video formats.
// Output goes to a file, or straight to a running daemon over SRT.
//
// Usage:
//
//	go run ./test/tools/gen-signals -spec t=audio,sr=48000,bd=16,ch=2 -dur 30s -out tone.pcm
//	go run ./test/tools/gen-signals -spec t=video,fps=30,w=640,h=360 -dur 30s -srt localhost:6000 -key pattern
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	srtingest "github.com/zsiec/cadence/ingest/srt"
	"github.com/zsiec/cadence/media"
)

func main() {
	spec := flag.String("spec", "t=audio,sr=48000,bd=16,ch=2", "media format spec")
	dur := flag.Duration("dur", 30*time.Second, "signal duration")
	freq := flag.Float64("freq", 440, "sine frequency in Hz (audio)")
	out := flag.String("out", "", "output file")
	srtAddr := flag.String("srt", "", "publish live to an SRT listener instead of a file")
	key := flag.String("key", "signal", "feed key for SRT publishing")
	flag.Parse()

	format, err := media.ParseSpec(*spec)
	if err != nil {
		log.Fatal(err)
	}
	geom, err := format.Geometry()
	if err != nil {
		log.Fatal(err)
	}
	frames := int(dur.Seconds() * float64(geom.Rate))

	gen, err := newGenerator(format, *freq)
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case *srtAddr != "":
		if err := publish(*srtAddr, *key, format, geom, gen, frames); err != nil {
			log.Fatal(err)
		}
	case *out != "":
		f, err := os.Create(*out)
		if err != nil {
			log.Fatal(err)
		}
		for i := 0; i < frames; i++ {
			if _, err := f.Write(gen.frame(i)); err != nil {
				log.Fatal(err)
			}
		}
		if err := f.Close(); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %d frames (%d bytes) to %s\n", frames, frames*geom.ItemSize, *out)
	default:
		log.Fatal("one of -out or -srt is required")
	}
}

// publish paces frames at the format's real-time rate into a live SRT
// publication, the way an actual encoder would.
func publish(addr, key string, format media.Format, geom media.Geometry, gen generator, frames int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pr, pw := io.Pipe()
	go func() {
		ticker := time.NewTicker(geom.Interval())
		defer ticker.Stop()
		for i := 0; i < frames; i++ {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			}
			if _, err := pw.Write(gen.frame(i)); err != nil {
				return
			}
		}
		pw.Close()
	}()

	caller := srtingest.NewCaller(nil)
	return caller.Publish(ctx, addr, key, format, pr)
}
