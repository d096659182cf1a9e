package proxy

import "sync"

// fileOpenRequest is the per-handle state carried from CREATE through to
// CLOSE, per §4.F.
type fileOpenRequest struct {
	filename string
	doWrite  bool
	doDelete bool
}

// connState holds every per-connection table §4.F describes. mid-keyed maps
// hold a request until its matching response arrives and resolves it into
// the tid/file-id-keyed tables; session-keyed fields back the two "latest"
// shortcuts compound chains rely on.
type connState struct {
	mu sync.Mutex

	// tree_connect_requests[mid] -> path, until the TREE_CONNECT response
	// moves it into connectedTrees.
	pendingTreeConnect map[uint64]string
	// connected_trees[tid] -> path.
	connectedTrees map[uint32]string

	// file_open_requests[mid] -> pending create, until the CREATE response
	// moves it into openFiles.
	pendingCreate map[uint64]fileOpenRequest
	// open_files[file_id] -> resolved create state.
	openFiles map[[16]byte]fileOpenRequest

	// session_latest_tree_connect_path, keyed by session id.
	sessionLatestTree map[uint64]string
	// session_latest_create_request_filename, keyed by session id.
	sessionLatestCreateFilename map[uint64]string
}

func newConnState() *connState {
	return &connState{
		pendingTreeConnect:          make(map[uint64]string),
		connectedTrees:              make(map[uint32]string),
		pendingCreate:               make(map[uint64]fileOpenRequest),
		openFiles:                   make(map[[16]byte]fileOpenRequest),
		sessionLatestTree:           make(map[uint64]string),
		sessionLatestCreateFilename: make(map[uint64]string),
	}
}

func (s *connState) notePendingTreeConnect(mid uint64, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTreeConnect[mid] = path
}

func (s *connState) noteSessionLatestTree(sessionID uint64, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionLatestTree[sessionID] = path
}

// resolveTreeConnect moves a pending TREE_CONNECT into connectedTrees on a
// successful response.
func (s *connState) resolveTreeConnect(mid uint64, tid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.pendingTreeConnect[mid]
	delete(s.pendingTreeConnect, mid)
	if ok {
		s.connectedTrees[tid] = path
	}
}

func (s *connState) dropPendingTreeConnect(mid uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingTreeConnect, mid)
}

// treePath resolves tid per §4.F "tid resolution": the reuse sentinel
// follows session_latest_tree_connect_path, otherwise a direct lookup.
func (s *connState) treePath(sessionID uint64, tid uint32, reuse bool) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reuse {
		path, ok := s.sessionLatestTree[sessionID]
		return path, ok
	}
	path, ok := s.connectedTrees[tid]
	return path, ok
}

func (s *connState) notePendingCreate(mid uint64, req fileOpenRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCreate[mid] = req
}

func (s *connState) noteSessionLatestCreateFilename(sessionID uint64, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionLatestCreateFilename[sessionID] = filename
}

func (s *connState) sessionLatestFilename(sessionID uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.sessionLatestCreateFilename[sessionID]
	return name, ok
}

// resolveCreate moves a pending CREATE into openFiles on a successful
// response, or discards it on failure.
func (s *connState) resolveCreate(mid uint64, fileID [16]byte, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pendingCreate[mid]
	delete(s.pendingCreate, mid)
	if ok && success {
		s.openFiles[fileID] = req
	}
}

func (s *connState) openFile(fileID [16]byte) (fileOpenRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.openFiles[fileID]
	return req, ok
}

func (s *connState) setFileDispositionDelete(fileID [16]byte, delete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.openFiles[fileID]
	if !ok {
		return
	}
	req.doDelete = delete
	s.openFiles[fileID] = req
}

// removeOpenFile deletes the handle entry. Callers must only invoke this
// once any CLOSE-triggered SYNCBACK/DELETE action has completed (spec §8:
// "a SYNCBACK action starts before the handle entry is removed") — a
// concurrent STATS/HEALTH read of openFileCount must keep seeing the
// handle as open for the full duration of the write-back.
func (s *connState) removeOpenFile(fileID [16]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.openFiles, fileID)
}

// openFileCount reports the number of handles still open, used by graceful
// shutdown (§4.H: "the connection closes only when its open_files map is
// empty").
func (s *connState) openFileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.openFiles)
}
