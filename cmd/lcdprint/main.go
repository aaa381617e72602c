// lcdprint is the print menu controller: it browses a card directory,
// streams the chosen file to a simulated or serial-attached printer and
// shows the front panel on the terminal.
//
// Usage:
//
//	lcdprint -card ~/gcode [options]
//
// Options:
//
//	-config string   Printer configuration file (default: built-in machine)
//	-card string     Card mount directory (default "card")
//	-serial string   Serial device, "auto" to probe, empty to simulate
//	-baud int        Serial baud rate (default 250000)
//	-listen string   Status server address, empty to disable (default ":7125")
//	-metrics string  Separate metrics listener, e.g. ":9100"
//	-speedup float   Simulated machine time per wall second (default 1)
//	-logfile string  Log file path, rotated (default: stderr only)
//	-trace           Enable debug logging
//
// Panel verbs are read from stdin, one per line: up, down, select, yes,
// no, pause, resume, tune, tune <item> <delta>, abort, ack.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lcdprint-go/pkg/config"
	"lcdprint-go/pkg/display"
	"lcdprint-go/pkg/gcodelink"
	"lcdprint-go/pkg/heater"
	"lcdprint-go/pkg/log"
	"lcdprint-go/pkg/metrics"
	"lcdprint-go/pkg/motion"
	"lcdprint-go/pkg/reactor"
	"lcdprint-go/pkg/sdcard"
	"lcdprint-go/pkg/serial"
	"lcdprint-go/pkg/session"
	"lcdprint-go/pkg/statusapi"
)

const (
	pumpInterval   = 0.01
	motionInterval = 0.01
	heaterInterval = 0.1
	pollInterval   = 0.05
)

type options struct {
	configFile  string
	cardDir     string
	serialDev   string
	baud        int
	listen      string
	metricsAddr string
	speedup     float64
	logFile     string
	trace       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "Printer configuration file (default: built-in machine)")
	flag.StringVar(&opts.cardDir, "card", "card", "Card mount directory")
	flag.StringVar(&opts.serialDev, "serial", "", `Serial device, "auto" to probe, empty to simulate`)
	flag.IntVar(&opts.baud, "baud", serial.DefaultConfig().BaudRate, "Serial baud rate")
	flag.StringVar(&opts.listen, "listen", ":7125", "Status server address, empty to disable")
	flag.StringVar(&opts.metricsAddr, "metrics", "", "Separate metrics listener address")
	flag.Float64Var(&opts.speedup, "speedup", 1, "Simulated machine time per wall second")
	flag.StringVar(&opts.logFile, "logfile", "", "Log file path (default: stderr only)")
	flag.BoolVar(&opts.trace, "trace", false, "Enable debug logging")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// machine bundles the collaborators behind the motion queue.
type machine struct {
	motion session.Motion
	temp   session.Temperature
	lamp   session.Lamp
	// timers run on the reactor next to the session tick.
	timers func(r *reactor.Reactor)
	// serve runs beside the reactor, when set.
	serve func(ctx context.Context) error
	// cooldown turns the heaters off once nothing else drives the machine.
	cooldown func()
	close    func()
}

func run(opts options) error {
	logger, closeLog, err := setupLogging(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	m := config.DefaultMachine()
	if opts.configFile != "" {
		var cfg *config.Config
		if m, cfg, err = config.LoadMachine(opts.configFile); err != nil {
			return err
		}
		if err := cfg.CheckUnusedOptions(); err != nil {
			logger.WithError(err).Warn("unrecognised config options")
		}
		if unused := cfg.GetUnusedSections(); len(unused) > 0 {
			logger.WithField("sections", unused).Warn("unrecognised config sections")
		}
	}
	logger.WithFields(log.Fields{
		"config":   opts.configFile,
		"card":     opts.cardDir,
		"volume":   fmt.Sprintf("%gx%gx%g", m.XMax, m.YMax, m.ZMax),
		"queue":    m.QueueCapacity,
		"material": m.Material.Name,
	}).Info("lcdprint starting")

	card := sdcard.New(opts.cardDir)
	job := sdcard.NewJob(card)
	watcher, err := sdcard.NewWatcher(card)
	if err != nil {
		return err
	}

	mach, err := openMachine(opts, m, job)
	if err != nil {
		return err
	}
	defer mach.close()

	met := metrics.GlobalMetrics()
	sinks := display.Multi{display.NewText(os.Stdout), met}
	observers := session.Observers{met}

	var status *statusapi.Server
	if opts.listen != "" {
		status = statusapi.New(statusapi.Config{
			Addr:    opts.listen,
			Metrics: metrics.NewHandler(met, "", "").Metrics(),
		})
		sinks = append(sinks, status)
		observers = append(observers, status.History())
	}

	ctrl, err := session.New(session.Deps{
		Storage:     card,
		Motion:      mach.motion,
		Temperature: mach.temp,
		Job:         job,
		Sink:        sinks,
		Lamp:        mach.lamp,
		Observer:    observers,
	}, m, nil)
	if err != nil {
		return err
	}

	r := reactor.New()
	refresh := 1 / m.Display.RefreshHz
	r.RegisterTimer("ui", func(eventtime float64) float64 {
		ctrl.Tick(time.Now())
		return eventtime + refresh
	}, reactor.NOW)
	r.RegisterTimer("job", func(eventtime float64) float64 {
		job.Pump(mach.motion)
		return eventtime + pumpInterval
	}, reactor.NOW)
	mach.timers(r)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.Serve(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return runConsole(gctx, os.Stdin, r, ctrl) })
	if mach.serve != nil {
		g.Go(func() error { return mach.serve(gctx) })
	}
	if status != nil {
		g.Go(func() error { return status.Run(gctx) })
	}
	if opts.metricsAddr != "" {
		cfg := metrics.DefaultServerConfig()
		cfg.Address = opts.metricsAddr
		ms := metrics.NewServer(met, cfg)
		g.Go(ms.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()

	// The reactor has stopped; nothing else touches the heaters now.
	mach.cooldown()
	if err != nil {
		logger.WithError(err).Error("lcdprint stopped")
		return err
	}
	logger.Info("lcdprint stopped")
	return nil
}

func setupLogging(opts options) (*log.Logger, func(), error) {
	var root *log.Logger
	closeLog := func() {}
	if opts.logFile != "" {
		l, fw, err := log.NewConsoleAndFileLogger("lcdprint", log.RotationConfig{Filename: opts.logFile})
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		root = l
		closeLog = func() { fw.Close() }
	} else {
		root = log.New("lcdprint")
	}
	log.ConfigureFromEnv(root)
	if opts.trace {
		root.SetLevel(log.DEBUG)
	}
	log.SetDefaultLogger(root)
	return log.GetLogger("main"), closeLog, nil
}

// openMachine builds the simulator, or the serial link when a device is
// given.
func openMachine(opts options, m config.Machine, job *sdcard.Job) (*machine, error) {
	if opts.serialDev == "" {
		bank := heater.NewBank(m.MaxHotendTemp, m.MaxBedTemp)
		sim := motion.NewSim(motion.ConfigFromMachine(m, opts.speedup), bank, job.Paused)
		return &machine{
			motion: sim,
			temp:   bank,
			lamp:   sim,
			timers: func(r *reactor.Reactor) {
				r.RegisterTimer("motion", stepper(r, sim.Step, motionInterval), reactor.NOW)
				r.RegisterTimer("heaters", stepper(r, bank.Update, heaterInterval), reactor.NOW)
			},
			cooldown: func() {
				bank.SetTarget(0, 0)
				bank.SetTarget(session.BedTool, 0)
			},
			close: func() {},
		}, nil
	}

	scfg := serial.DefaultConfig()
	scfg.BaudRate = opts.baud
	scfg.ReadTimeout = 200 * time.Millisecond
	var (
		port *serial.Port
		err  error
	)
	if opts.serialDev == "auto" {
		port, err = serial.Detect(scfg, scfg.ConnectTimeout)
	} else {
		scfg.Device = opts.serialDev
		port, err = serial.Open(scfg)
	}
	if err != nil {
		return nil, err
	}
	link := gcodelink.New(gcodelink.ConfigFromMachine(m), port.Device(), port, job.Paused)
	if err := link.Start(); err != nil {
		port.Close()
		return nil, err
	}
	log.GetLogger("main").WithFields(log.Fields{
		"device": port.Device(),
		"baud":   scfg.BaudRate,
	}).Info("printer connected")

	return &machine{
		motion: link,
		temp:   link,
		lamp:   link,
		timers: func(r *reactor.Reactor) {
			r.RegisterTimer("link", func(eventtime float64) float64 {
				link.Poll(time.Now())
				return eventtime + pollInterval
			}, reactor.NOW)
		},
		serve: link.Run,
		cooldown: func() {
			if err := link.Shutdown(); err != nil {
				log.GetLogger("main").WithError(err).Error("cannot turn heaters off")
			}
		},
		close: func() { port.Close() },
	}, nil
}

// stepper adapts a dt-driven model to a periodic timer.
func stepper(r *reactor.Reactor, step func(dt float64), interval float64) reactor.TimerCallback {
	last := r.Monotonic()
	return func(eventtime float64) float64 {
		step(eventtime - last)
		last = eventtime
		return eventtime + interval
	}
}
