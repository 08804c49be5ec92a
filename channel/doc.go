/*
Package channel carries commands from the controller process to the worker process that hosts the web view.

Commands flow one way only. The controller listens on a loopback TCP port and accepts exactly one connection,
from the worker it spawned. Each command is a frame: a JSON array whose first element is the operation name and
whose remaining elements are the operation's arguments. Frames are separated by a single newline. JSON encoding
never emits a raw newline, so a newline always ends a frame and a bad frame cannot shift the start of the next one.

The protocol proceeds as follows:

1. The controller calls Listen and may immediately start calling Write. Frames written before the worker
connects are held in an outbound queue.
2. The worker calls Dial and then Serve.
3. When the controller accepts the connection it sends every queued frame, in order, before any frame written
afterwards. From then on Write sends directly.
4. The worker decodes frames in arrival order and hands them, in the same order, to its dispatcher.

There are no replies, acknowledgements or heartbeats. A worker-side failure to run an operation is logged on the
worker and never reported back to the controller.
*/
package channel
