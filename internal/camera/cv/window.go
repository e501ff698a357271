//go:build !nocv

package cv

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/minagishl/vrchat-webcam-tracker/internal/camera"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

const keyEscape = 27

var (
	pointColor = color.RGBA{G: 255, A: 255}
	textColor  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

type window struct {
	win *gocv.Window
}

// NewWindow opens a native preview window. OpenCV windows must be driven
// from the main goroutine on some platforms.
func NewWindow(title string) (camera.Preview, error) {
	return &window{win: gocv.NewWindow(title)}, nil
}

func (w *window) Show(frame types.Frame, set *types.LandmarkSet, params types.ExpressionFrame) bool {
	img, err := gocv.IMDecode(frame.JPEG, gocv.IMReadColor)
	if err != nil || img.Empty() {
		return w.win.WaitKey(1) == keyEscape
	}
	defer img.Close()

	if set != nil {
		for _, kp := range set.Points {
			pt := image.Pt(int(kp.X*float64(img.Cols())), int(kp.Y*float64(img.Rows())))
			gocv.Circle(&img, pt, 2, pointColor, -1)
		}
	}
	for i, name := range params.Names() {
		line := fmt.Sprintf("%s: %.2f", name, params[name])
		gocv.PutText(&img, line, image.Pt(10, 20+i*18), gocv.FontHersheyPlain, 1.1, textColor, 1)
	}

	w.win.IMShow(img)
	return w.win.WaitKey(1) == keyEscape
}

func (w *window) Close() error {
	return w.win.Close()
}
