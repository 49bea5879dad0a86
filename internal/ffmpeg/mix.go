package ffmpeg

import (
	"fmt"
	"strings"
)

// audioBus returns the input args and filter chains that mix voices onto a
// single stereo bus labeled [aout], exactly total seconds long. Voice i is
// read from input index firstInput+i. Voices overlap freely; amix sums them
// without normalization so each keeps its own gain.
func audioBus(voices []Voice, firstInput int, total float64) ([]string, []string) {
	if len(voices) == 0 {
		return nil, []string{fmt.Sprintf(
			"anullsrc=r=%d:cl=stereo,atrim=duration=%s[aout]",
			DefaultAudioRate, formatSeconds(total),
		)}
	}

	var (
		inputs []string
		chains []string
		labels strings.Builder
	)
	for i, v := range voices {
		inputs = append(inputs, "-i", v.Path)
		label := fmt.Sprintf("a%d", i)
		chains = append(chains, NewFilterBuilder().
			ATrim(v.SourceStart, v.Duration).
			Custom(fmt.Sprintf("aresample=%d", DefaultAudioRate)).
			Custom("aformat=channel_layouts=stereo").
			ADelay(v.Start).
			GatedVolume(v.Gain, v.Start, v.Start+v.Duration).
			Labeled(fmt.Sprintf("%d:a", firstInput+i), label))
		fmt.Fprintf(&labels, "[%s]", label)
	}
	chains = append(chains, fmt.Sprintf(
		"%samix=inputs=%d:normalize=0:duration=longest,apad,atrim=duration=%s[aout]",
		labels.String(), len(voices), formatSeconds(total),
	))
	return inputs, chains
}
