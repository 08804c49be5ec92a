/*
Package launcher turns one executable into a controller/worker process pair.

A program calls Run (or Launch, if it parses its own flags with urfave/cli) at the top of main. When the
process was started without -port and -hostname it is the controller: the launcher picks the first free
loopback port at or above the base port, listens on it, and hands a Controller to the application. The
application opens a window with Controller.NewWindow, which re-executes the same program with
-port, -hostname, -args and -pair so that the new process becomes the worker.

The worker decodes -args into the engine's construction arguments, builds the engine once, connects back
to the controller and executes commands until the controller goes away or the engine shuts down.
*/
package launcher
