package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/minagishl/vrchat-webcam-tracker/internal/camera"
	"github.com/minagishl/vrchat-webcam-tracker/internal/camera/cv"
	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
)

const maxProbeDevices = 5

// promptCamera lists the devices that answer and asks which one to use.
// An empty answer picks the first working device.
func promptCamera(ctx context.Context, in io.Reader, out io.Writer, t config.CameraTuning) (int, error) {
	fmt.Fprintln(out, "Looking for cameras...")
	var found []int
	for i := 0; i < maxProbeDevices; i++ {
		if camera.Probe(ctx, cv.OpenDevice, camera.OptionsFromTuning(i, t)) {
			found = append(found, i)
			fmt.Fprintf(out, "  [%d] camera %d\n", i, i)
		}
	}
	return chooseCamera(in, out, found)
}

func chooseCamera(in io.Reader, out io.Writer, found []int) (int, error) {
	if len(found) == 0 {
		return 0, camera.ErrDeviceUnavailable
	}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Select camera [%d]: ", found[0])
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, err
			}
			return found[0], nil
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			return found[0], nil
		}
		index, err := strconv.Atoi(answer)
		if err != nil {
			fmt.Fprintf(out, "%q is not a number\n", answer)
			continue
		}
		for _, f := range found {
			if f == index {
				return index, nil
			}
		}
		fmt.Fprintf(out, "camera %d is not available\n", index)
	}
}
