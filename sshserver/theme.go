package sshserver

import (
	"sort"
	"strconv"
)

type rgb struct {
	r int
	g int
	b int
}

// tuiTheme colors the tape viewer.
type tuiTheme struct {
	Name     string
	TitleBG  rgb
	TitleFG  rgb
	CellFG   rgb
	BorderFG rgb
	HeadBG   rgb
	HeadFG   rgb
	StateFG  rgb
	MetaFG   rgb
	OKFG     rgb
	ErrorFG  rgb
	KeyFG    rgb
}

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
)

const defaultThemeName = "outrun"

var tuiThemes = map[string]tuiTheme{
	"outrun": {
		Name:     "outrun",
		TitleBG:  rgb{r: 32, g: 8, b: 56},
		TitleFG:  rgb{r: 240, g: 241, b: 255},
		CellFG:   rgb{r: 240, g: 241, b: 255},
		BorderFG: rgb{r: 60, g: 79, b: 184},
		HeadBG:   rgb{r: 0, g: 229, b: 255},
		HeadFG:   rgb{r: 10, g: 13, b: 23},
		StateFG:  rgb{r: 255, g: 91, b: 189},
		MetaFG:   rgb{r: 154, g: 163, b: 178},
		OKFG:     rgb{r: 112, g: 214, b: 255},
		ErrorFG:  rgb{r: 255, g: 107, b: 107},
		KeyFG:    rgb{r: 154, g: 182, b: 255},
	},
	"gruvbox": {
		Name:     "gruvbox",
		TitleBG:  rgb{r: 60, g: 56, b: 54},
		TitleFG:  rgb{r: 235, g: 219, b: 178},
		CellFG:   rgb{r: 235, g: 219, b: 178},
		BorderFG: rgb{r: 102, g: 92, b: 84},
		HeadBG:   rgb{r: 250, g: 189, b: 47},
		HeadFG:   rgb{r: 40, g: 40, b: 40},
		StateFG:  rgb{r: 214, g: 93, b: 14},
		MetaFG:   rgb{r: 146, g: 131, b: 116},
		OKFG:     rgb{r: 184, g: 187, b: 38},
		ErrorFG:  rgb{r: 251, g: 73, b: 52},
		KeyFG:    rgb{r: 131, g: 165, b: 152},
	},
	"tokyo-midnight": {
		Name:     "tokyo-midnight",
		TitleBG:  rgb{r: 26, g: 27, b: 38},
		TitleFG:  rgb{r: 192, g: 202, b: 245},
		CellFG:   rgb{r: 192, g: 202, b: 245},
		BorderFG: rgb{r: 59, g: 79, b: 159},
		HeadBG:   rgb{r: 122, g: 162, b: 247},
		HeadFG:   rgb{r: 26, g: 27, b: 38},
		StateFG:  rgb{r: 187, g: 154, b: 247},
		MetaFG:   rgb{r: 127, g: 133, b: 163},
		OKFG:     rgb{r: 158, g: 206, b: 106},
		ErrorFG:  rgb{r: 247, g: 118, b: 142},
		KeyFG:    rgb{r: 125, g: 207, b: 255},
	},
}

func themeForName(name string) tuiTheme {
	if theme, ok := tuiThemes[name]; ok {
		return theme
	}
	return tuiThemes[defaultThemeName]
}

// ThemeNames lists the available viewer themes.
func ThemeNames() []string {
	names := make([]string, 0, len(tuiThemes))
	for name := range tuiThemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func ansiBgRGB(c rgb) string {
	return "\x1b[48;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func colorize(fg rgb, text string) string {
	if text == "" {
		return ""
	}
	return ansiFgRGB(fg) + text + ansiReset
}
