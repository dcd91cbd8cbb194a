package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	config "taskboard.com/taskboard/internal/configs"
	"taskboard.com/taskboard/internal/gateway"
	"taskboard.com/taskboard/internal/logging"
	"taskboard.com/taskboard/internal/mutation"
	"taskboard.com/taskboard/internal/push"
	"taskboard.com/taskboard/internal/services"
)

// client is the wiring every client command shares: one gateway, one push
// manager and the cached task service on top of them.
type client struct {
	cfg     config.Config
	gateway *gateway.Client
	push    *push.Manager
	tasks   *services.TaskService
	logger  *log.Logger
	logFile io.Closer
}

// newClient builds the client stack. With quiet set, logs go to log_file
// only, so a full screen program is not drawn over.
func newClient(quiet bool) (*client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	c := &client{cfg: cfg}
	switch {
	case cfg.LogFile != "":
		logger, closer, err := logging.OpenFile(cfg.LogFile, "taskboard: ")
		if err != nil {
			return nil, err
		}
		c.logger, c.logFile = logger, closer
	case quiet:
		c.logger = logging.New(io.Discard, "")
	default:
		c.logger = logging.New(os.Stderr, "taskboard: ")
	}

	c.gateway = gateway.New(cfg.APIURL, gateway.WithTimeout(cfg.RequestTimeout))
	c.push = push.NewManager(cfg.SocketURL, push.WithLogger(c.logger))
	c.tasks = services.NewTaskService(c.gateway, c.push,
		services.WithStaleTime(cfg.StaleTime),
		services.WithLogger(c.logger),
	)
	return c, nil
}

// orchestrator runs mutations with feedback printed to out and errOut.
func (c *client) orchestrator(out, errOut io.Writer) *mutation.Orchestrator {
	return mutation.New(c.gateway, c.tasks, printFeedback{out: out, errOut: errOut}, mutation.WithLogger(c.logger))
}

func (c *client) Close() {
	c.tasks.Close()
	if err := c.push.Close(); err != nil {
		c.logger.Printf("close push channel: %v", err)
	}
	if c.logFile != nil {
		c.logFile.Close()
	}
}

// printFeedback reports mutation outcomes on the terminal. There is no
// dialog to close on the command line.
type printFeedback struct {
	out    io.Writer
	errOut io.Writer
}

func (printFeedback) CloseDialog() {}

func (p printFeedback) Notify(n mutation.Notification) {
	if n.Level == mutation.LevelError {
		fmt.Fprintln(p.errOut, n.Message)
		return
	}
	fmt.Fprintln(p.out, n.Message)
}
