/*
Package streaming protects long HTTP responses from slow clients.

The main server runs without a global write timeout because artifacts can
be hundreds of megabytes. Instead each transfer is wrapped in a Writer that
pushes the connection's write deadline forward before every chunk. A client
that stops reading fails the next write with ErrWriteTimeout and releases the
open file; a client that keeps reading is never cut off.

# Usage

	sw := streaming.NewWriter(r.Context(), w, streaming.DefaultConfig())
	http.ServeContent(sw, r, name, modTime, file)
	sw.Close()

	if err := sw.Err(); err != nil && !errors.Is(err, streaming.ErrClientGone) {
		logging.Warn("transfer of %s failed: %v", name, err)
	}

Writer implements Unwrap, so http.ResponseController and the middleware
wrappers beneath it keep working.
*/
package streaming
