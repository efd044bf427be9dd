package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vsariola/kontrol"
	"github.com/vsariola/kontrol/cmd"
	"github.com/vsariola/kontrol/midimap"
	"github.com/vsariola/kontrol/sequence"
	"github.com/vsariola/kontrol/version"
)

// config holds the defaults read from the -config file. Command line flags
// override them.
type config struct {
	Port          string                                `yaml:",omitempty"`
	Input         string                                `yaml:",omitempty"`
	BPM           float64                               `yaml:",omitempty"`
	Thinning      float64                               `yaml:",omitempty"`
	Interpolation map[string]kontrol.InterpolationStyle `yaml:",omitempty"`
}

func main() {
	help := flag.Bool("h", false, "Show help.")
	dump := flag.Bool("d", false, "Print the merged event stream of the input files.")
	yamlOut := flag.Bool("y", false, "Output the track as .yml file.")
	midOut := flag.Bool("m", false, "Output the track as a standard MIDI file (.mid).")
	play := flag.Bool("p", false, "Play the input files to a MIDI output port (default behaviour when no other output is defined).")
	port := flag.String("port", "", "Play to the first MIDI output whose name starts with this prefix. Default: first port.")
	input := flag.String("in", "", "Record from the first MIDI input whose name starts with this prefix while playing, and write the recording as .rec.mid.")
	list := flag.Bool("l", false, "List MIDI ports.")
	thin := flag.Float64("t", 0, "Thin automation lists with this factor before output. 0 disables thinning.")
	bpm := flag.Float64("bpm", 120, "Tempo used for playing, in beats per minute.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the current directory.")
	configFile := flag.String("config", "", "Read defaults for port, input, bpm, thinning and interpolation from this .yml file.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	var conf config
	if *configFile != "" {
		b, err := os.ReadFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not read config %v: %v\n", *configFile, err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(b, &conf); err != nil {
			fmt.Fprintf(os.Stderr, "could not parse config %v: %v\n", *configFile, err)
			os.Exit(1)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			conf.Port = *port
		case "in":
			conf.Input = *input
		case "bpm":
			conf.BPM = *bpm
		case "t":
			conf.Thinning = *thin
		}
	})
	if conf.BPM <= 0 {
		conf.BPM = *bpm
	}
	interpolation, err := parseInterpolation(conf.Interpolation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid interpolation in config: %v\n", err)
		os.Exit(1)
	}
	midiContext := cmd.NewMIDIContext()
	defer midiContext.Close()
	if *list {
		for name := range midiContext.OutputPorts {
			fmt.Printf("out: %v\n", name)
		}
		for name := range midiContext.InputPorts {
			fmt.Printf("in:  %v\n", name)
		}
		if flag.NArg() == 0 {
			return
		}
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*dump && !*yamlOut && !*midOut {
		*play = true // if the user gives nothing to output, then the default behaviour is just to play the file
	}
	alerts := make(chan kontrol.Alert, 256)
	var alertList kontrol.Alerts
	flushAlerts := func() {
		alertList.Drain(alerts)
		for _, a := range alertList.Iterate {
			fmt.Fprintf(os.Stderr, "%v\n", a)
		}
		alertList = kontrol.Alerts{}
	}
	var sink kontrol.EventSink[kontrol.Beats]
	if *play {
		sink, err = midiContext.OpenOutput(conf.Port)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not open MIDI output: %v\n", err)
			os.Exit(1)
		}
	}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	tm := midimap.TypeMap{}
	factory := &midimap.ControlFactory{TypeMap: tm, Domain: kontrol.BeatTime, Interpolation: interpolation}
	process := func(filename string) error {
		output := func(extension string, contents []byte) error {
			_, name := filepath.Split(filename)
			dir := *directory
			if dir == "" {
				var err error
				dir, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
				}
			}
			name = strings.TrimSuffix(name, filepath.Ext(name)) + extension
			f := filepath.Join(dir, name)
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return fmt.Errorf("could not create output directory %v: %v", dir, err)
			}
			if err := os.WriteFile(f, contents, 0644); err != nil {
				return fmt.Errorf("could not write file %v: %v", f, err)
			}
			return nil
		}
		defer flushAlerts()
		seq := sequence.New[kontrol.Beats](tm, factory, alerts)
		if err := load(seq, filename); err != nil {
			return err
		}
		if conf.Thinning > 0 {
			for _, c := range seq.Controls() {
				if l := c.List(); l != nil {
					l.Thin(conf.Thinning)
				}
			}
		}
		if *dump {
			for ev := range seq.Events(0, sequence.IterOptions[kontrol.Beats]{}) {
				fmt.Printf("%v\t%v\n", ev.Time, ev.Buffer)
			}
		}
		if *yamlOut {
			doc := seq.Document()
			contents, err := doc.Marshal()
			if err != nil {
				return fmt.Errorf("could not marshal the track: %v", err)
			}
			if err := output(".yml", contents); err != nil {
				return fmt.Errorf("error outputting .yml file: %v", err)
			}
		}
		if *midOut {
			var buf bytes.Buffer
			if err := seq.WriteSMF(&buf); err != nil {
				return fmt.Errorf("could not write the track as SMF: %v", err)
			}
			if err := output(".mid", buf.Bytes()); err != nil {
				return fmt.Errorf("error outputting .mid file: %v", err)
			}
		}
		if *play {
			var rec *sequence.Recorder[kontrol.Beats]
			var recSeq *sequence.Sequence[kontrol.Beats]
			start := time.Now()
			clock := func() kontrol.Beats {
				return kontrol.BeatsFromFloat(time.Since(start).Seconds() * conf.BPM / 60)
			}
			if conf.Input != "" {
				recSeq = sequence.New[kontrol.Beats](tm, factory, alerts)
				rec = recSeq.Record(clock)
				if err := midiContext.Listen(conf.Input, rec.HandleMessage); err != nil {
					rec.Stop()
					return fmt.Errorf("could not record: %v", err)
				}
			}
			err := playSequence(seq, sink, clock, interrupt)
			if rec != nil {
				rec.Stop()
				var buf bytes.Buffer
				if err := recSeq.WriteSMF(&buf); err != nil {
					return fmt.Errorf("could not write the recording as SMF: %v", err)
				}
				if err := output(".rec.mid", buf.Bytes()); err != nil {
					return fmt.Errorf("error outputting the recording: %v", err)
				}
			}
			if err != nil {
				return fmt.Errorf("playing failed: %v", err)
			}
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		if info, err := os.Stat(param); err == nil && info.IsDir() {
			var files []string
			for _, pattern := range []string{"*.mid", "*.yml", "*.json"} {
				matches, err := filepath.Glob(filepath.Join(param, pattern))
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not glob the path %v for %v files: %v\n", param, pattern, err)
					retval = 1
					continue
				}
				files = append(files, matches...)
			}
			for _, file := range files {
				if err := process(file); err != nil {
					fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", file, err)
					retval = 1
				}
			}
		} else {
			if err := process(param); err != nil {
				fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", param, err)
				retval = 1
			}
		}
	}
	os.Exit(retval)
}

func load(seq *sequence.Sequence[kontrol.Beats], filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("could not open file %v: %v", filename, err)
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mid", ".midi", ".smf":
		return seq.ReadSMF(f)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return fmt.Errorf("could not read file %v: %v", filename, err)
	}
	doc, err := kontrol.ParseDocument(buf.Bytes())
	if err != nil {
		return err
	}
	seq.LoadDocument(doc)
	return nil
}

// playSequence renders the sequence to sink in short blocks, paced by clock,
// until the end of the sequence or an interrupt. Notes still sounding are
// then silenced.
func playSequence(seq *sequence.Sequence[kontrol.Beats], sink kontrol.EventSink[kontrol.Beats], clock func() kontrol.Beats, interrupt <-chan os.Signal) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	duration := seq.Duration()
	var pos kontrol.Beats
	var active []kontrol.Note[kontrol.Beats]
	var err error
	for pos <= duration {
		select {
		case <-interrupt:
			for _, n := range active {
				sink.Write(pos, kontrol.MIDIEvent, n.OffEvent())
			}
			return nil
		case <-ticker.C:
		}
		end := clock() + 1
		if end <= pos {
			continue
		}
		if active, err = seq.Render(sink, pos, end, active); err != nil {
			return err
		}
		pos = end
	}
	return nil
}

func parseInterpolation(m map[string]kontrol.InterpolationStyle) (map[kontrol.ParameterType]kontrol.InterpolationStyle, error) {
	ret := make(map[kontrol.ParameterType]kontrol.InterpolationStyle, len(m))
	for name, style := range m {
		var typ kontrol.ParameterType
		if err := typ.UnmarshalText([]byte(name)); err != nil {
			return nil, err
		}
		ret[typ] = style
	}
	return ret, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Command line utility for playing and converting .mid/.yml/.json MIDI tracks.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
