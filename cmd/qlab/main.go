// Command qlab runs the quantum lab lessons from the command line.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/jaskrrish/Go-QLab/internal/bv"
	"github.com/jaskrrish/Go-QLab/internal/config"
	"github.com/jaskrrish/Go-QLab/internal/primer"
	"github.com/jaskrrish/Go-QLab/internal/qft"
	"github.com/jaskrrish/Go-QLab/internal/qkd"
	"github.com/jaskrrish/Go-QLab/internal/qkd/crypto"
	"github.com/jaskrrish/Go-QLab/internal/qknn"
	"github.com/jaskrrish/Go-QLab/internal/quantum"
	"github.com/jaskrrish/Go-QLab/internal/report"
	"github.com/jaskrrish/Go-QLab/internal/shifter"
)

// VERSION is populated via build flags when packaging binaries.
var VERSION = "SELFBUILD"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		color.Red("qlab: %v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "qlab"
	app.Usage = "introductory quantum computing lessons on a circuit simulator"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "",
			Usage: "YAML config file",
		},
		cli.IntFlag{
			Name:  "shots",
			Value: 0,
			Usage: "shots per circuit, 0 uses the configured default",
		},
		cli.Int64Flag{
			Name:  "seed",
			Value: 0,
			Usage: "seed for the local simulator, 0 seeds from the clock",
		},
		cli.StringFlag{
			Name:  "backend",
			Value: "",
			Usage: "local or qiskit, overrides the config file",
		},
		cli.StringFlag{
			Name:  "svg",
			Value: "",
			Usage: "write the histogram as an SVG bar chart to this file",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "log simulator activity to stderr",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "lesson",
			Usage:     "run a primer lesson by name, or list them",
			ArgsUsage: "[name]",
			Action:    lessonAction,
		},
		{
			Name:   "superposition",
			Usage:  "Hadamard on one qubit",
			Action: namedLesson("superposition"),
		},
		{
			Name:   "bell",
			Usage:  "prepare and measure a Bell pair",
			Action: namedLesson("bell"),
		},
		{
			Name:  "ghz",
			Usage: "prepare and measure an n-qubit GHZ state",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "qubits, n", Value: 3, Usage: "register width"},
			},
			Action: ghzAction,
		},
		{
			Name:      "rotate",
			Usage:     "rotate a bit string one place with a chain of SWAPs",
			ArgsUsage: "<bits>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "direction, d", Value: "right", Usage: "left or right"},
			},
			Action: rotateAction,
		},
		{
			Name:      "qft",
			Usage:     "apply the QFT and its inverse to a basis state",
			ArgsUsage: "<bits>",
			Action:    qftAction,
		},
		{
			Name:      "qpe",
			Usage:     "estimate the phase θ of P(2πθ)",
			ArgsUsage: "<theta>",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "counting, n", Value: 3, Usage: "counting register width"},
			},
			Action: qpeAction,
		},
		{
			Name:      "bv",
			Usage:     "recover a Bernstein-Vazirani secret with one oracle query",
			ArgsUsage: "<secret>",
			Action:    bvAction,
		},
		{
			Name:  "bb84",
			Usage: "run a BB84 key exchange",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "length, l", Value: 0, Usage: "final key length in bits, 0 uses the config"},
				cli.BoolFlag{Name: "eve", Usage: "insert an intercept-resend eavesdropper"},
				cli.Float64Flag{Name: "noise", Value: 0, Usage: "channel bit-flip probability"},
				cli.BoolFlag{Name: "postprocess", Usage: "apply Cascade and privacy amplification"},
			},
			Action: bb84Action,
		},
		{
			Name:      "distance",
			Usage:     "estimate the distance between two 2-D vectors with a swap test",
			ArgsUsage: "<ax,ay> <bx,by>",
			Action:    distanceAction,
		},
		{
			Name:      "knn",
			Usage:     "classify a point against labelled samples",
			ArgsUsage: "<x,y> <label:x,y>...",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "k", Value: 1, Usage: "neighbours that vote"},
			},
			Action: knnAction,
		},
		{
			Name:      "qasm",
			Usage:     "print a lesson circuit as OpenQASM 2.0",
			ArgsUsage: "<lesson>",
			Action:    qasmAction,
		},
	}
	return app
}

// lab holds what every command needs.
type lab struct {
	cfg    *config.Config
	sim    quantum.Simulator
	logger *zap.Logger
	out    io.Writer
	shots  int
	svg    string
}

func setup(c *cli.Context) (*lab, error) {
	cfg, err := config.LoadOrDefault(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if b := c.GlobalString("backend"); b != "" {
		cfg.Simulator.Backend = strings.ToLower(b)
	}
	if s := c.GlobalInt("shots"); s != 0 {
		cfg.Simulator.Shots = s
	}
	if seed := c.GlobalInt64("seed"); seed != 0 {
		cfg.Simulator.Seed = seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if c.GlobalBool("verbose") {
		if logger, err = cfg.Log.NewLogger(); err != nil {
			return nil, err
		}
	}

	sim, err := cfg.NewSimulator(logger)
	if err != nil {
		return nil, err
	}
	return &lab{
		cfg:    cfg,
		sim:    sim,
		logger: logger,
		out:    c.App.Writer,
		shots:  cfg.Simulator.Shots,
		svg:    c.GlobalString("svg"),
	}, nil
}

func (l *lab) heading(format string, args ...interface{}) {
	color.New(color.FgCyan, color.Bold).Fprintf(l.out, format+"\n", args...)
}

func (l *lab) field(name string, value interface{}) {
	fmt.Fprintf(l.out, "  %-16s %v\n", name+":", value)
}

func (l *lab) verdict(ok bool, pass, fail string) {
	if ok {
		color.New(color.FgGreen).Fprintln(l.out, pass)
	} else {
		color.New(color.FgRed).Fprintln(l.out, fail)
	}
}

// render prints counts as a histogram, or writes them to the --svg file.
func (l *lab) render(title string, counts quantum.Counts) error {
	if l.svg == "" {
		return report.WriteHistogram(l.out, counts)
	}
	f, err := os.Create(l.svg)
	if err != nil {
		return errors.Wrap(err, "create svg")
	}
	defer f.Close()
	if err := report.WriteSVG(f, counts, title); err != nil {
		return err
	}
	fmt.Fprintf(l.out, "  histogram written to %s\n", l.svg)
	return nil
}

func argument(c *cli.Context, i int, name string) (string, error) {
	if c.NArg() <= i {
		return "", errors.Errorf("%s: missing %s argument", c.Command.Name, name)
	}
	return c.Args().Get(i), nil
}

func runLesson(c *cli.Context, lesson primer.Lesson) error {
	l, err := setup(c)
	if err != nil {
		return err
	}
	result, err := lesson.Run(context.Background(), l.sim, l.shots)
	if err != nil {
		return err
	}
	l.heading("%s on %s (%d shots)", lesson.Name, l.sim.Name(), l.shots)
	if lesson.Summary != "" {
		l.field("lesson", lesson.Summary)
	}
	l.field("expected", strings.Join(result.Expected, " "))
	if err := l.render(lesson.Name, result.Counts); err != nil {
		return err
	}
	l.verdict(result.Consistent(), "only expected outcomes observed", "unexpected outcomes observed")
	return nil
}

func namedLesson(name string) func(*cli.Context) error {
	return func(c *cli.Context) error {
		lesson, err := primer.Lookup(name)
		if err != nil {
			return err
		}
		return runLesson(c, lesson)
	}
}

func lessonAction(c *cli.Context) error {
	if c.NArg() == 0 {
		for _, name := range primer.Names() {
			lesson, _ := primer.Lookup(name)
			fmt.Fprintf(c.App.Writer, "%-16s %s\n", name, lesson.Summary)
		}
		return nil
	}
	return namedLesson(c.Args().First())(c)
}

func ghzAction(c *cli.Context) error {
	n := c.Int("qubits")
	return runLesson(c, primer.Lesson{
		Name:     fmt.Sprintf("ghz-%d", n),
		Summary:  "entangled register: all zeros or all ones",
		Expected: primer.GHZOutcomes(n),
		Build:    func() (*quantum.Circuit, error) { return primer.GHZ(n) },
	})
}

func rotateAction(c *cli.Context) error {
	bits, err := argument(c, 0, "bits")
	if err != nil {
		return err
	}
	dir, err := shifter.ParseDirection(c.String("direction"))
	if err != nil {
		return err
	}
	l, err := setup(c)
	if err != nil {
		return err
	}

	result, err := shifter.Run(context.Background(), l.sim, bits, dir, l.shots)
	if err != nil {
		return err
	}
	l.heading("rotate %s %s", result.Input, result.Direction)
	l.field("output", result.Output)
	l.field("expected", result.Expected)
	if err := l.render("rotate "+result.Input, result.Counts); err != nil {
		return err
	}
	l.verdict(result.Verified(), "register matches the classical rotation", "register does not match the classical rotation")
	return nil
}

func qftAction(c *cli.Context) error {
	bits, err := argument(c, 0, "bits")
	if err != nil {
		return err
	}
	l, err := setup(c)
	if err != nil {
		return err
	}

	steps, err := qft.Ladder(len(bits))
	if err != nil {
		return err
	}
	rt, err := qft.RunRoundTrip(context.Background(), l.sim, bits, l.shots)
	if err != nil {
		return err
	}
	l.heading("QFT then inverse QFT on |%s⟩", bits)
	for _, s := range steps {
		fmt.Fprintf(l.out, "  %v\n", s)
	}
	l.field("output", rt.Output)
	if err := l.render("qft round trip", rt.Counts); err != nil {
		return err
	}
	l.verdict(rt.Identity(), "input recovered on every shot", "round trip changed the input")
	return nil
}

func qpeAction(c *cli.Context) error {
	arg, err := argument(c, 0, "theta")
	if err != nil {
		return err
	}
	theta, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return errors.Wrapf(err, "theta %q", arg)
	}
	l, err := setup(c)
	if err != nil {
		return err
	}

	est, err := qft.EstimatePhase(context.Background(), l.sim, theta, c.Int("counting"), l.shots)
	if err != nil {
		return err
	}
	l.heading("phase estimation of θ = %g with %d counting qubits", est.Theta, est.Counting)
	l.field("outcome", est.Outcome)
	l.field("estimate", est.Phase)
	l.field("error", est.Error)
	return l.render(fmt.Sprintf("QPE θ=%g", est.Theta), est.Counts)
}

func bvAction(c *cli.Context) error {
	arg, err := argument(c, 0, "secret")
	if err != nil {
		return err
	}
	secret, err := bv.ParseSecret(arg)
	if err != nil {
		return err
	}
	l, err := setup(c)
	if err != nil {
		return err
	}

	result, err := bv.Recover(context.Background(), l.sim, secret, l.shots)
	if err != nil {
		return err
	}
	l.heading("Bernstein-Vazirani, secret %s", result.Secret)
	l.field("recovered", result.Recovered)
	l.field("oracle queries", result.Queries)
	if err := l.render("bernstein-vazirani", result.Counts); err != nil {
		return err
	}
	l.verdict(result.Verified(), "secret recovered", "secret not recovered")
	return nil
}

func bb84Action(c *cli.Context) error {
	l, err := setup(c)
	if err != nil {
		return err
	}
	length := c.Int("length")
	if length == 0 {
		length = l.cfg.BB84.KeyLength
	}

	opts := []qkd.Option{
		qkd.WithLogger(l.logger),
		qkd.WithEavesdropper(c.Bool("eve")),
		qkd.WithChannelNoise(c.Float64("noise")),
		qkd.WithOversampling(l.cfg.BB84.Oversampling),
	}
	if seed := l.cfg.Simulator.Seed; seed != 0 {
		opts = append(opts, qkd.WithSeed(seed))
	}
	if c.Bool("postprocess") {
		opts = append(opts, qkd.WithPostProcessing(crypto.AmplificationMethod(l.cfg.BB84.Amplification)))
	}
	protocol, err := qkd.NewBB84Protocol(l.sim, length, opts...)
	if err != nil {
		return err
	}
	protocol.SetQBERThreshold(l.cfg.BB84.QBERThreshold)
	protocol.SetSampleSize(l.cfg.BB84.SampleFraction)

	result, err := protocol.PerformKeyExchange(context.Background())
	if err != nil {
		return err
	}
	l.heading("BB84 key exchange (%d qubits sent)", result.Transmitted)
	l.field("sifted bits", result.RawKeyLength)
	l.field("sampled bits", result.SampledBits)
	l.field("QBER", fmt.Sprintf("%.2f%%", result.QBER*100))
	if result.Eavesdropped {
		l.field("eve agreement", fmt.Sprintf("%.2f%%", result.EveAgreement*100))
	}
	if result.DisclosedBits > 0 {
		l.field("disclosed bits", result.DisclosedBits)
	}
	if result.Secure {
		l.field("key", hex.EncodeToString(result.Key))
	}
	l.verdict(result.Secure, result.Message, result.Message)
	return nil
}

// parseVector reads "x,y".
func parseVector(s string) (qknn.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return qknn.Vector{}, errors.Errorf("vector %q: want x,y", s)
	}
	var v qknn.Vector
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return qknn.Vector{}, errors.Wrapf(err, "vector %q", s)
		}
		v[i] = f
	}
	return v, nil
}

func distanceAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("distance: want two vectors")
	}
	a, err := parseVector(c.Args().Get(0))
	if err != nil {
		return err
	}
	b, err := parseVector(c.Args().Get(1))
	if err != nil {
		return err
	}
	l, err := setup(c)
	if err != nil {
		return err
	}

	est, err := qknn.EstimateDistance(context.Background(), l.sim, a, b, l.shots)
	if err != nil {
		return err
	}
	l.heading("swap test between %v and %v", a, b)
	l.field("P(0)", est.P0)
	l.field("overlap", est.Overlap)
	l.field("distance", est.Distance)
	l.field("exact", est.Exact)
	return l.render("swap test", est.Counts)
}

func knnAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("knn: want a query and at least one sample")
	}
	query, err := parseVector(c.Args().First())
	if err != nil {
		return err
	}
	samples := make([]qknn.Sample, 0, c.NArg()-1)
	for _, arg := range c.Args().Tail() {
		i := strings.Index(arg, ":")
		if i <= 0 {
			return errors.Errorf("sample %q: want label:x,y", arg)
		}
		v, err := parseVector(arg[i+1:])
		if err != nil {
			return err
		}
		samples = append(samples, qknn.Sample{Label: arg[:i], Vector: v})
	}
	l, err := setup(c)
	if err != nil {
		return err
	}

	result, err := qknn.Classify(context.Background(), l.sim, query, samples, c.Int("k"), l.shots)
	if err != nil {
		return err
	}
	l.heading("%d-nearest neighbours of %v", c.Int("k"), query)
	for _, n := range result.Neighbors {
		fmt.Fprintf(l.out, "  #%-3d %-12s %.4f\n", n.Index, n.Label, n.Distance)
	}
	l.field("label", fmt.Sprintf("%s (%d votes)", result.Label, result.Votes))
	return nil
}

func qasmAction(c *cli.Context) error {
	name, err := argument(c, 0, "lesson")
	if err != nil {
		return err
	}
	lesson, err := primer.Lookup(name)
	if err != nil {
		return err
	}
	circuit, err := lesson.Build()
	if err != nil {
		return err
	}
	_, err = io.WriteString(c.App.Writer, circuit.QASM())
	return err
}
