// ABOUTME: Entry point for the pcmprobe feed watcher
// ABOUTME: Finds a probe's metric feed over mDNS or by address and prints its readings
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pcmprobe/pcmprobe/internal/config"
	"github.com/pcmprobe/pcmprobe/internal/discovery"
	"github.com/pcmprobe/pcmprobe/internal/feed"
)

var (
	addr     = flag.String("addr", "", "Feed address host:port (default: discover via mDNS)")
	wait     = flag.Duration("wait", 10*time.Second, "How long to browse for a feed")
	logLevel = flag.String("loglevel", "warn", "Log level: debug, info, warn, error or none")
	logFile  = flag.String("logfile", "", "Log file path")
)

func main() {
	flag.Parse()

	f, err := config.ConfigureDefaultLogger(*logLevel, *logFile, slog.HandlerOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	if f != nil {
		defer f.Close()
	}

	feedAddr := *addr
	if feedAddr == "" {
		info, err := discover(*wait)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		feedAddr = net.JoinHostPort(info.Host, strconv.Itoa(info.Port))
		fmt.Printf("Discovered %s at %s\n", info.Name, info.URL())
	}

	client := feed.NewClient(feedAddr)
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "connection failed: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case msg, ok := <-client.Messages:
			if !ok {
				fmt.Println("Feed closed")
				return
			}
			fmt.Printf("%s  #%d  RMS: %.2f  peak: %.0f  %.1f dBFS\n",
				msg.Device, msg.Seq, msg.RMS, msg.Peak, msg.DBFS)
		case <-sigChan:
			client.Close()
			return
		}
	}
}

// discover browses mDNS until a feed appears or timeout passes
func discover(timeout time.Duration) (*discovery.FeedInfo, error) {
	slog.Info("starting feed discovery")
	disc := discovery.NewManager(discovery.Config{})
	defer disc.Stop()

	if err := disc.Browse(); err != nil {
		return nil, fmt.Errorf("mDNS browse failed: %w", err)
	}

	select {
	case info := <-disc.Feeds():
		return info, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no feed found after %s", timeout)
	}
}
