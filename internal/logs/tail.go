package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Last returns up to n trailing lines of path and the offset of the file's
// end. A missing file yields no lines and offset zero.
func Last(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if n <= 0 {
		return nil, info.Size(), nil
	}

	scanner := newLineScanner(file)
	ring := make([]string, n)
	count, idx := 0, 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % n
		if count < n {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}

	lines := make([]string, count)
	if count == n {
		for i := range count {
			lines[i] = ring[(idx+i)%n]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, offset, nil
}

// Follow calls fn for every complete line appended to path after offset,
// polling every interval, until ctx is done. It returns ctx's error.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, fn func(line string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lines, next, err := readFrom(path, offset)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fn(line)
		}
		offset = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// readFrom returns the complete lines after offset. A partial trailing line
// is left for the next read.
func readFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		lines = append(lines, trimNewline(line))
	}
	return lines, offset, nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

func trimNewline(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
