package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ocupoint/salogger/pkg/scpi"
)

// A raw SCPI console for poking at the analyzer. Commands come from the
// arguments or, without arguments, one per line from stdin. Lines ending in
// '?' are queries and print the reply.
func main() {
	addr := flag.String("addr", "TCPIP0::192.168.0.124::inst0::INSTR", "Instrument VISA address, IP or host:port")
	timeout := flag.Duration("timeout", scpi.DefaultTimeout, "I/O timeout")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	conn, err := scpi.Dial(ctx, *addr, *timeout)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("connect failed")
	}
	defer conn.Close()
	log.Info().Str("addr", conn.Address()).Msg("connected")

	if flag.NArg() > 0 {
		for _, cmd := range flag.Args() {
			if err := execute(conn, cmd); err != nil {
				log.Fatal().Err(err).Str("cmd", cmd).Msg("command failed")
			}
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		if err := execute(conn, cmd); err != nil {
			log.Error().Err(err).Str("cmd", cmd).Msg("command failed")
		}
	}
}

func execute(conn *scpi.Conn, cmd string) error {
	if !strings.HasSuffix(cmd, "?") {
		return conn.Write(cmd)
	}
	start := time.Now()
	resp, err := conn.Query(cmd)
	if err != nil {
		return err
	}
	fmt.Println(resp)
	log.Debug().Dur("took", time.Since(start)).Int("bytes", len(resp)).Msg(cmd)
	return nil
}
