// otapush uploads a firmware image to a running device. It asks the
// command server to arm the receiver, then pushes the image to the OTA
// port and reports the progress.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"flamingods.net/ledplans/config"
	"flamingods.net/ledplans/ota"
)

type options struct {
	host     string
	httpPort string
	otaPort  string
	password string
	firmware string
	timeout  time.Duration
}

type otaStatus struct {
	InProgress bool `json:"ota_in_progress"`
	Progress   int  `json:"ota_progress"`
}

func main() {
	opts := options{}
	flag.StringVar(&opts.host, "host", "", "Device address")
	flag.StringVar(&opts.httpPort, "http", "80", "Port of the command server")
	flag.StringVar(&opts.otaPort, "port", "3232", "Port of the OTA receiver")
	flag.StringVar(&opts.password, "password", "", "OTA password, defaults to $"+config.EnvOTAPassword)
	flag.StringVar(&opts.firmware, "firmware", "", "Firmware image to upload")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Give up after this long")
	flag.Parse()

	_ = godotenv.Load()
	if opts.password == "" {
		opts.password = os.Getenv(config.EnvOTAPassword)
	}
	if opts.host == "" || opts.firmware == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	image, err := os.ReadFile(opts.firmware)
	if err != nil {
		return err
	}
	if len(image) == 0 {
		return fmt.Errorf("%s is empty", opts.firmware)
	}
	base := "http://" + net.JoinHostPort(opts.host, opts.httpPort)

	status, err := fetchStatus(ctx, base)
	if err != nil {
		return err
	}
	if status.InProgress {
		return fmt.Errorf("device is already receiving an update (%d%%): %w", status.Progress, ota.ErrBusy)
	}
	if err := arm(ctx, base); err != nil {
		return err
	}

	last := -1
	err = ota.Push(ctx, net.JoinHostPort(opts.host, opts.otaPort), opts.password, image, func(sent, total int) {
		if percent := sent * 100 / total; percent/10 != last/10 {
			last = percent
			fmt.Fprintf(out, "\rUploading %s: %3d%%", opts.firmware, percent)
		}
	})
	fmt.Fprintln(out)
	if err != nil {
		var coded *ota.CodedError
		if errors.As(err, &coded) {
			return fmt.Errorf("device reported %s: %w", coded.Code, err)
		}
		return err
	}
	fmt.Fprintf(out, "Uploaded %d bytes, the device restarts now\n", len(image))
	return nil
}

func fetchStatus(ctx context.Context, base string) (otaStatus, error) {
	var status otaStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/ota-status", nil)
	if err != nil {
		return status, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, fmt.Errorf("query OTA status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("query OTA status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode OTA status: %w", err)
	}
	return status, nil
}

func arm(ctx context.Context, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/ota", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("arm OTA: %w", err)
	}
	defer resp.Body.Close()
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("arm OTA: %s: %w", body.Message, ota.ErrBusy)
	default:
		return fmt.Errorf("arm OTA: %s %s", resp.Status, body.Message)
	}
}
