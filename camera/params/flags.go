package params

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"stillcam/mmal"
)

// Command describes one image parameter on the command line.
type Command struct {
	Name   string
	Abbrev string
	Help   string
	// Arg is false for switches that take no value.
	Arg bool
}

// Commands lists every image parameter command in help order.
var Commands = []Command{
	{"sharpness", "sh", "Set image sharpness (-100 to 100)", true},
	{"contrast", "co", "Set image contrast (-100 to 100)", true},
	{"brightness", "br", "Set image brightness (0 to 100)", true},
	{"saturation", "sa", "Set image saturation (-100 to 100)", true},
	{"ISO", "", "Set capture ISO", true},
	{"vstab", "vs", "Turn on video stabilisation", false},
	{"ev", "ev", "Set EV compensation", true},
	{"exposure", "ex", "Set exposure mode (see Notes)", true},
	{"awb", "awb", "Set AWB mode (see Notes)", true},
	{"imxfx", "ifx", "Set image effect (see Notes)", true},
	{"colfx", "cfx", "Set colour effect (U:V)", true},
	{"metering", "mm", "Set metering mode (see Notes)", true},
	{"rotation", "rot", "Set image rotation (0-359)", true},
	{"hflip", "hf", "Set horizontal flip", false},
	{"vflip", "vf", "Set vertical flip", false},
	{"roi", "roi", "Set region of interest (x,y,w,d as normalised coordinates [0.0-1.0])", true},
	{"shutter", "ss", "Set shutter speed in microseconds", true},
}

type colfxValue struct{ c *ColourEffects }

func (v colfxValue) String() string {
	if v.c == nil || !v.c.Enable {
		return ""
	}
	return fmt.Sprintf("%d:%d", v.c.U, v.c.V)
}

func (v colfxValue) Set(s string) error {
	var u, w int
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return errors.Wrapf(mmal.ErrInvalidParameter, "colfx %q: want U:V", s)
	}
	u, err := strconv.Atoi(parts[0])
	if err == nil {
		w, err = strconv.Atoi(parts[1])
	}
	if err != nil {
		return errors.Wrapf(mmal.ErrInvalidParameter, "colfx %q: %v", s, err)
	}
	*v.c = ColourEffects{Enable: true, U: u, V: w}
	return nil
}

type roiValue struct{ r *ROI }

func (v roiValue) String() string {
	if v.r == nil {
		return ""
	}
	return v.r.String()
}

func (v roiValue) Set(s string) error {
	r, err := ParseROI(s)
	if err != nil {
		return err
	}
	*v.r = r
	return nil
}

// RegisterFlags binds every command, under both its names, to p.
func RegisterFlags(fs *flag.FlagSet, p *Parameters) {
	for _, c := range Commands {
		bind(fs, p, c, c.Name)
		if c.Abbrev != "" && c.Abbrev != c.Name {
			bind(fs, p, c, c.Abbrev)
		}
	}
}

func bind(fs *flag.FlagSet, p *Parameters, c Command, name string) {
	switch c.Name {
	case "sharpness":
		fs.IntVar(&p.Sharpness, name, p.Sharpness, c.Help)
	case "contrast":
		fs.IntVar(&p.Contrast, name, p.Contrast, c.Help)
	case "brightness":
		fs.IntVar(&p.Brightness, name, p.Brightness, c.Help)
	case "saturation":
		fs.IntVar(&p.Saturation, name, p.Saturation, c.Help)
	case "ISO":
		fs.IntVar(&p.ISO, name, p.ISO, c.Help)
	case "vstab":
		fs.BoolVar(&p.VideoStabilisation, name, p.VideoStabilisation, c.Help)
	case "ev":
		fs.IntVar(&p.ExposureCompensation, name, p.ExposureCompensation, c.Help)
	case "exposure":
		fs.TextVar(&p.ExposureMode, name, p.ExposureMode, c.Help)
	case "awb":
		fs.TextVar(&p.AWBMode, name, p.AWBMode, c.Help)
	case "imxfx":
		fs.TextVar(&p.ImageEffect, name, p.ImageEffect, c.Help)
	case "colfx":
		fs.Var(colfxValue{&p.ColourEffects}, name, c.Help)
	case "metering":
		fs.TextVar(&p.MeteringMode, name, p.MeteringMode, c.Help)
	case "rotation":
		fs.IntVar(&p.Rotation, name, p.Rotation, c.Help)
	case "hflip":
		fs.BoolVar(&p.HFlip, name, p.HFlip, c.Help)
	case "vflip":
		fs.BoolVar(&p.VFlip, name, p.VFlip, c.Help)
	case "roi":
		fs.Var(roiValue{&p.ROI}, name, c.Help)
	case "shutter":
		fs.IntVar(&p.ShutterSpeed, name, p.ShutterSpeed, c.Help)
	default:
		panic("params: no binding for command " + c.Name)
	}
}

// PrintHelp writes the command list followed by the mode options.
func PrintHelp(w io.Writer) {
	fmt.Fprintf(w, "\nImage parameter commands\n\n")
	for _, c := range Commands {
		if c.Abbrev == "" {
			fmt.Fprintf(w, "-%s\t: %s\n", c.Name, c.Help)
			continue
		}
		fmt.Fprintf(w, "-%s, -%s\t: %s\n", c.Abbrev, c.Name, c.Help)
	}
	fmt.Fprintf(w, "\n\nNotes\n\nExposure mode options :\n%v", exposureNames)
	fmt.Fprintf(w, "\n\nAWB mode options :\n%v", awbNames)
	fmt.Fprintf(w, "\n\nImage Effect mode options :\n%v", effectNames)
	fmt.Fprintf(w, "\n\nMetering Mode options :\n%v\n", meteringNames)
}
