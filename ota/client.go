package ota

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"
)

const pushChunk = 4096

// Push sends a firmware image to the receiver at addr. progress, if not
// nil, is called after every chunk with the bytes sent so far.
func Push(ctx context.Context, addr, password string, image []byte, progress func(sent, total int)) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	br := bufio.NewReader(conn)
	sum := sha256.Sum256(image)
	if _, err := fmt.Fprintf(conn, "PUSH %d %s\n", len(image), hex.EncodeToString(sum[:])); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	answer, err := readReply(br)
	if err != nil {
		return err
	}
	switch {
	case answer == "BUSY":
		return ErrBusy
	case answer == "DENIED":
		return ErrNotArmed
	case strings.HasPrefix(answer, "AUTH "):
		nonce := strings.TrimPrefix(answer, "AUTH ")
		if _, err := fmt.Fprintf(conn, "%s\n", hex.EncodeToString(Sign(password, nonce))); err != nil {
			return fmt.Errorf("send auth: %w", err)
		}
		if answer, err = readReply(br); err != nil {
			return err
		}
		if answer != "OK" {
			return ErrAuth
		}
	case answer == "OK":
	default:
		return replyError(answer)
	}

	for sent := 0; sent < len(image); {
		end := min(sent+pushChunk, len(image))
		if _, err := conn.Write(image[sent:end]); err != nil {
			return fmt.Errorf("send image: %w", err)
		}
		sent = end
		if progress != nil {
			progress(sent, len(image))
		}
	}
	answer, err = readReply(br)
	if err != nil {
		return err
	}
	if answer != "DONE" {
		return replyError(answer)
	}
	return nil
}

func readReply(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func replyError(answer string) error {
	if code, ok := ParseErrorCode(strings.TrimPrefix(answer, "ERR ")); ok {
		return &CodedError{Code: code, Err: fmt.Errorf("device rejected image")}
	}
	return fmt.Errorf("unexpected reply %q", answer)
}
