package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ocupoint/salogger/pkg/acquire"
)

// Tails the log of a running salogger server and optionally saves each plot.
func main() {
	host := flag.String("host", "localhost:8080", "salogger server host:port")
	plotFile := flag.String("plot", "", "Write each received plot PNG to this file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", u.String()).Msg("dial")
	}
	defer c.Close()

	for {
		typ, data, err := c.ReadMessage()
		if err != nil {
			log.Info().Err(err).Msg("connection closed")
			return
		}

		if typ == websocket.BinaryMessage {
			if *plotFile != "" {
				if err := os.WriteFile(*plotFile, data, 0644); err != nil {
					log.Error().Err(err).Msg("write plot")
				}
			}
			continue
		}

		var ev acquire.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Err(err).Msg("bad event")
			continue
		}
		printEvent(ev)
	}
}

func printEvent(ev acquire.Event) {
	switch ev.Type {
	case acquire.EventLog:
		if ev.Log.Level == acquire.LevelError {
			fmt.Printf("\x1b[31m%s\x1b[0m\n", ev.Log.Text)
		} else {
			fmt.Println(ev.Log.Text)
		}
	case acquire.EventState:
		s := ev.State
		fmt.Printf("[state] connected=%v running=%v start=%q %d/%d\n", s.Connected, s.Running, s.StartLabel, s.Progress, s.Total)
	case acquire.EventRunDone:
		r := ev.Run
		if r.Error != "" {
			fmt.Printf("[run] %s failed after %d rows: %s\n", r.Path, r.Rows, r.Error)
			return
		}
		fmt.Printf("[run] %s: %d rows in %s\n", r.Path, r.Rows, time.Duration(r.Duration*float64(time.Second)).Round(time.Millisecond))
	}
}
