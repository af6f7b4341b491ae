package image

import stdimage "image"

// ImageNet channel statistics, the defaults applied by the extraction
// transforms.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Tensor is a dense CHW float32 image tensor.
type Tensor struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// At returns the value at channel c, row y, column x.
func (t Tensor) At(c, y, x int) float32 {
	return t.Data[c*t.Height*t.Width+y*t.Width+x]
}

// ToTensor converts an image to a 3-channel CHW tensor with values in [0, 1].
func ToTensor(img stdimage.Image) Tensor {
	b := img.Bounds()
	t := Tensor{
		Channels: 3,
		Height:   b.Dy(),
		Width:    b.Dx(),
		Data:     make([]float32, 3*b.Dy()*b.Dx()),
	}
	plane := t.Height * t.Width
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*t.Width + x
			t.Data[i] = float32(r) / 65535.0
			t.Data[plane+i] = float32(g) / 65535.0
			t.Data[2*plane+i] = float32(bl) / 65535.0
		}
	}
	return t
}

// Normalize applies per-channel mean and standard deviation normalization in
// place and returns the tensor.
func Normalize(t Tensor, mean, std [3]float32) Tensor {
	plane := t.Height * t.Width
	for c := 0; c < t.Channels && c < 3; c++ {
		for i := 0; i < plane; i++ {
			t.Data[c*plane+i] = (t.Data[c*plane+i] - mean[c]) / std[c]
		}
	}
	return t
}
