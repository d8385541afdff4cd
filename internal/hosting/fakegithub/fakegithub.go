// Package fakegithub is an in-memory stand-in for the subset of the GitHub
// REST API the admin panel uses: users, collaborator permissions, git
// refs/commits/trees/blobs and pull requests.
//
// Objects are content addressed like git's own (SHA-1 over a typed payload),
// refs only move forward unless forced, and every request is recorded so
// tests can assert call order.
package fakegithub

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// User is an account the fake recognises by bearer token.
type User struct {
	ID        int64
	Login     string
	AvatarURL string
}

// Call is one recorded API request.
type Call struct {
	Operation string
	Token     string
	Detail    string
}

// PullRequest is a pull request opened against the fake.
type PullRequest struct {
	Number int
	Title  string
	Body   string
	Head   string
	Base   string
}

type commit struct {
	tree    string
	parents []string
	message string
}

type repository struct {
	owner         string
	name          string
	defaultBranch string
	refs          map[string]string            // branch -> commit sha
	commits       map[string]commit            // sha -> commit
	trees         map[string]map[string]string // sha -> path -> blob sha
	blobs         map[string][]byte            // sha -> content
	permissions   map[string]string            // lower(login) -> level
	pulls         []PullRequest
}

// GitHub is the fake API. The zero value is not usable; call New.
type GitHub struct {
	mu     sync.Mutex
	users  map[string]User // token -> user
	repos  map[string]*repository
	calls  []Call
	failOn map[string]int
	router chi.Router
}

// New returns an empty fake.
func New() *GitHub {
	g := &GitHub{
		users:  make(map[string]User),
		repos:  make(map[string]*repository),
		failOn: make(map[string]int),
	}
	g.router = g.routes()
	return g
}

// Start serves the fake on a local listener. Close the server when done.
func (g *GitHub) Start() *httptest.Server {
	return httptest.NewServer(g)
}

// ServeHTTP implements http.Handler.
func (g *GitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// AddUser registers token as belonging to u.
func (g *GitHub) AddUser(token string, u User) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[token] = u
}

// AddRepository creates owner/name with a root commit on defaultBranch whose
// tree holds files (path -> content). It returns the root commit SHA.
func (g *GitHub) AddRepository(owner, name, defaultBranch string, files map[string]string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	repo := &repository{
		owner:         owner,
		name:          name,
		defaultBranch: defaultBranch,
		refs:          make(map[string]string),
		commits:       make(map[string]commit),
		trees:         make(map[string]map[string]string),
		blobs:         make(map[string][]byte),
		permissions:   make(map[string]string),
	}
	entries := make(map[string]string, len(files))
	for path, content := range files {
		entries[path] = repo.putBlob([]byte(content))
	}
	tree := repo.putTree(entries)
	root := repo.putCommit(commit{tree: tree, message: "initial commit"})
	repo.refs[defaultBranch] = root
	g.repos[repoKey(owner, name)] = repo
	return root
}

// SetPermission sets login's collaborator level on owner/name.
func (g *GitHub) SetPermission(owner, name, login, level string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.repos[repoKey(owner, name)].permissions[strings.ToLower(login)] = level
}

// FailOn makes every later request for operation answer with status.
func (g *GitHub) FailOn(operation string, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failOn[operation] = status
}

// Calls returns the recorded requests in arrival order.
func (g *GitHub) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// Operations returns only the operation names of Calls.
func (g *GitHub) Operations() []string {
	calls := g.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Operation
	}
	return ops
}

// Branch returns the commit a branch points at, or "".
func (g *GitHub) Branch(owner, name, branch string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.repos[repoKey(owner, name)].refs[branch]
}

// Branches lists the branch names of owner/name, sorted.
func (g *GitHub) Branches(owner, name string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var names []string
	for b := range g.repos[repoKey(owner, name)].refs {
		names = append(names, b)
	}
	sort.Strings(names)
	return names
}

// CommitParents returns the parents of a commit.
func (g *GitHub) CommitParents(owner, name, sha string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.repos[repoKey(owner, name)].commits[sha].parents...)
}

// CommitMessage returns the message of a commit.
func (g *GitHub) CommitMessage(owner, name, sha string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.repos[repoKey(owner, name)].commits[sha].message
}

// FilesAt returns path -> content of the tree of commit sha.
func (g *GitHub) FilesAt(owner, name, sha string) map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	repo := g.repos[repoKey(owner, name)]
	files := make(map[string]string)
	for path, blob := range repo.trees[repo.commits[sha].tree] {
		files[path] = string(repo.blobs[blob])
	}
	return files
}

// BlobCount returns how many distinct blobs owner/name stores.
func (g *GitHub) BlobCount(owner, name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.repos[repoKey(owner, name)].blobs)
}

// Pulls returns the pull requests opened on owner/name.
func (g *GitHub) Pulls(owner, name string) []PullRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]PullRequest(nil), g.repos[repoKey(owner, name)].pulls...)
}

func repoKey(owner, name string) string {
	return strings.ToLower(owner + "/" + name)
}

func objectSHA(kind string, payload []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(payload))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (r *repository) putBlob(content []byte) string {
	sha := objectSHA("blob", content)
	r.blobs[sha] = content
	return sha
}

func (r *repository) putTree(entries map[string]string) string {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "100644 %s %s\n", entries[p], p)
	}
	sha := objectSHA("tree", []byte(b.String()))
	r.trees[sha] = entries
	return sha
}

func (r *repository) putCommit(c commit) string {
	payload := fmt.Sprintf("tree %s\nparents %s\n\n%s", c.tree, strings.Join(c.parents, " "), c.message)
	sha := objectSHA("commit", []byte(payload))
	r.commits[sha] = c
	return sha
}

// descends reports whether sha has ancestor in its history.
func (r *repository) descends(sha, ancestor string) bool {
	seen := map[string]bool{}
	queue := []string{sha}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == ancestor {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, r.commits[cur].parents...)
	}
	return false
}

// =========================================================================
// HTTP
// =========================================================================

type apiError struct {
	status  int
	message string
}

func (g *GitHub) routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/user", g.handle("get_user", g.getUser))
	r.Route("/repos/{owner}/{repo}", func(r chi.Router) {
		r.Get("/", g.handle("get_repository", g.getRepository))
		r.Get("/collaborators/{login}/permission", g.handle("get_permission", g.getPermission))
		r.Get("/git/ref/*", g.handle("get_ref", g.getRef))
		r.Post("/git/refs", g.handle("create_ref", g.createRef))
		r.Patch("/git/refs/*", g.handle("update_ref", g.updateRef))
		r.Get("/git/commits/{sha}", g.handle("get_commit", g.getCommit))
		r.Post("/git/blobs", g.handle("create_blob", g.createBlob))
		r.Post("/git/trees", g.handle("create_tree", g.createTree))
		r.Post("/git/commits", g.handle("create_commit", g.createCommit))
		r.Post("/pulls", g.handle("create_pull", g.createPull))
	})
	return r
}

type handlerFunc func(r *http.Request, user User) (int, any, *apiError)

// handle authenticates the bearer token, records the call, applies injected
// failures and serialises the result.
func (g *GitHub) handle(operation string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		g.mu.Lock()
		g.calls = append(g.calls, Call{Operation: operation, Token: token, Detail: r.URL.Path})
		user, known := g.users[token]
		failStatus := g.failOn[operation]
		g.mu.Unlock()

		if !known {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		if failStatus != 0 {
			writeJSON(w, failStatus, map[string]string{"message": "injected failure: " + operation})
			return
		}

		status, body, apiErr := fn(r, user)
		if apiErr != nil {
			writeJSON(w, apiErr.status, map[string]string{"message": apiErr.message})
			return
		}
		writeJSON(w, status, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func notFound() *apiError {
	return &apiError{status: http.StatusNotFound, message: "Not Found"}
}

func unprocessable(msg string) *apiError {
	return &apiError{status: http.StatusUnprocessableEntity, message: msg}
}

// lookupRepo must be called with g.mu held.
func (g *GitHub) lookupRepo(r *http.Request) (*repository, *apiError) {
	repo, ok := g.repos[repoKey(chi.URLParam(r, "owner"), chi.URLParam(r, "repo"))]
	if !ok {
		return nil, notFound()
	}
	return repo, nil
}

func (g *GitHub) getUser(_ *http.Request, user User) (int, any, *apiError) {
	return http.StatusOK, map[string]any{
		"id":         user.ID,
		"login":      user.Login,
		"avatar_url": user.AvatarURL,
	}, nil
}

func (g *GitHub) getRepository(r *http.Request, _ User) (int, any, *apiError) {
	g.mu.Lock()
	defer g.mu.Unlock()
	repo, apiErr := g.lookupRepo(r)
	if apiErr != nil {
		return 0, nil, apiErr
	}
	return http.StatusOK, map[string]any{
		"name":           repo.name,
		"full_name":      repo.owner + "/" + repo.name,
		"default_branch": repo.defaultBranch,
	}, nil
}

func (g *GitHub) getPermission(r *http.Request, _ User) (int, any, *apiError) {
	g.mu.Lock()
	defer g.mu.Unlock()
	repo, apiErr := g.lookupRepo(r)
	if apiErr != nil {
		return 0, nil, apiErr
	}
	login := chi.URLParam(r, "login")
	level, ok := repo.permissions[strings.ToLower(login)]
	if !ok {
		return 0, nil, notFound()
	}
	return http.StatusOK, map[string]any{
		"permission": level,
		"user":       map[string]any{"login": login},
	}, nil
}

func refBody(repo *repository, branch string) map[string]any {
	return map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]any{"sha": repo.refs[branch], "type": "commit"},
	}
}

func (g *GitHub) getRef(r *http.Request, _ User) (int, any, *apiError) {
	g.mu.Lock()
	defer g.mu.Unlock()
	repo, apiErr := g.lookupRepo(r)
	if apiErr != nil {
		return 0, nil, apiErr
	}
	branch := strings.TrimPrefix(chi.URLParam(r, "*"), "heads/")
	if _, ok := repo.refs[branch]; !ok {
		return 0, nil, notFound()
	}
	return http.StatusOK, refBody(repo, branch), nil
}

func (g *GitHub) createRef(r *http.Request, _ User) (int, any, *apiError) {
	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, unprocessable("Problems parsing JSON")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	repo, apiErr := g.lookupRepo(r)
	if apiErr != nil {
		return 0, nil, apiErr
	}
	if !strings.HasPrefix(req.Ref, "refs/heads/") {
		return 0, nil, unprocessable("Reference name must start with refs/heads/")
	}
	branch := strings.TrimPrefix(req.Ref, "refs/heads/")
	if _, exists := repo.refs[branch]; exists {
		return 0, nil, unprocessable("Reference already exists")
	}
	if _, ok := repo.commits[req.SHA]; !ok {
		return 0, nil, unprocessable("Object does not exist")
	}
	repo.refs[branch] = req.SHA
	return http.StatusCreated, refBody(repo, branch), nil
}

func (g *GitHub) updateRef(r *http.Request, _ User) (int, any, *apiError) {
	var req struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, unprocessable("Problems parsing JSON")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	repo, apiErr := g.lookupRepo(r)
	if apiErr != nil {
		return 0, nil, apiErr
	}
	branch := strings.TrimPrefix(chi.URLParam(r, "*"), "heads/")
	current, ok := repo.refs[branch]
	if !ok {
		return 0, nil, unprocessable("Reference does not exist")
	}
	if _, ok := repo.commits[req.SHA]; !ok {
		return 0, nil, unprocessable("Object does not exist")
	}
	if !req.Force && !repo.descends(req.SHA, current) {
		return 0, nil, unprocessable("Update is not a fast forward")
	}
	repo.refs[branch] = req.SHA
	return http.StatusOK, refBody(repo, branch), nil
}

func (g *GitHub) getCommit(r *http.Request, _ User) (int, any, *apiError) {
	g.mu.Lock()
	defer g.mu.Unlock()
	repo, apiErr := g.lookupRepo(r)
	if apiErr != nil {
		return 0, nil, apiErr
	}
	sha := chi.URLParam(r, "sha")
	c, ok := repo.commits[sha]
	if !ok {
		return 0, nil, notFound()
	}
	parents := make([]map[string]any, 0, len(c.parents))
	for _, p := range c.parents {
		parents = append(parents, map[string]any{"sha": p})
	}
	return http.StatusOK, map[string]any{
		"sha":     sha,
		"message": c.message,
		"tree":    map[string]any{"sha": c.tree},
		"parents": parents,
	}, nil
}

func (g *GitHub) createBlob(r *http.Request, _ User) (int, any, *apiError) {
	var req struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, unprocessable("Problems parsing JSON")
	}

	var content []byte
	switch req.Encoding {
	case "", "utf-8":
		content = []byte(req.Content)
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return 0, nil, unprocessable("content is not valid Base64")
		}
		content = decoded
	default:
		return 0, nil, unprocessable("encoding must be utf-8 or base64")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	repo, apiErr := g.lookupRepo(r)
	if apiErr != nil {
		return 0, nil, apiErr
	}
	sha := repo.putBlob(content)
	return http.StatusCreated, map[string]any{"sha": sha, "size": len(content)}, nil
}

func (g *GitHub) createTree(r *http.Request, _ User) (int, any, *apiError) {
	var req struct {
		BaseTree string `json:"base_tree"`
		Tree     []struct {
			Path string  `json:"path"`
			Mode string  `json:"mode"`
			Type string  `json:"type"`
			SHA  *string `json:"sha"`
		} `json:"tree"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, unprocessable("Problems parsing JSON")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	repo, apiErr := g.lookupRepo(r)
	if apiErr != nil {
		return 0, nil, apiErr
	}

	entries := make(map[string]string)
	if req.BaseTree != "" {
		base, ok := repo.trees[req.BaseTree]
		if !ok {
			return 0, nil, unprocessable("base_tree is not a valid tree")
		}
		for p, sha := range base {
			entries[p] = sha
		}
	}
	for _, e := range req.Tree {
		if e.SHA == nil {
			delete(entries, e.Path)
			continue
		}
		if e.Type != "blob" || e.Mode != "100644" {
			return 0, nil, unprocessable("only regular blobs are supported")
		}
		if _, ok := repo.blobs[*e.SHA]; !ok {
			return 0, nil, unprocessable("tree.sha " + *e.SHA + " is not a valid blob")
		}
		entries[e.Path] = *e.SHA
	}
	sha := repo.putTree(entries)
	return http.StatusCreated, map[string]any{"sha": sha}, nil
}

func (g *GitHub) createCommit(r *http.Request, _ User) (int, any, *apiError) {
	var req struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, unprocessable("Problems parsing JSON")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	repo, apiErr := g.lookupRepo(r)
	if apiErr != nil {
		return 0, nil, apiErr
	}
	if _, ok := repo.trees[req.Tree]; !ok {
		return 0, nil, unprocessable("Tree SHA does not exist")
	}
	for _, p := range req.Parents {
		if _, ok := repo.commits[p]; !ok {
			return 0, nil, unprocessable("Parent SHA does not exist or is not a commit object")
		}
	}
	sha := repo.putCommit(commit{tree: req.Tree, parents: req.Parents, message: req.Message})
	return http.StatusCreated, map[string]any{
		"sha":     sha,
		"message": req.Message,
		"tree":    map[string]any{"sha": req.Tree},
	}, nil
}

func (g *GitHub) createPull(r *http.Request, _ User) (int, any, *apiError) {
	var req struct {
		Title string `json:"title"`
		Head  string `json:"head"`
		Base  string `json:"base"`
		Body  string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, unprocessable("Problems parsing JSON")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	repo, apiErr := g.lookupRepo(r)
	if apiErr != nil {
		return 0, nil, apiErr
	}
	head, okHead := repo.refs[req.Head]
	base, okBase := repo.refs[req.Base]
	if !okHead || !okBase {
		return 0, nil, unprocessable("Validation Failed")
	}
	if head == base {
		return 0, nil, unprocessable("No commits between " + req.Base + " and " + req.Head)
	}
	pr := PullRequest{
		Number: len(repo.pulls) + 1,
		Title:  req.Title,
		Body:   req.Body,
		Head:   req.Head,
		Base:   req.Base,
	}
	repo.pulls = append(repo.pulls, pr)
	return http.StatusCreated, map[string]any{
		"number":   pr.Number,
		"title":    pr.Title,
		"body":     pr.Body,
		"html_url": fmt.Sprintf("https://github.com/%s/%s/pull/%d", repo.owner, repo.name, pr.Number),
		"head":     map[string]any{"ref": pr.Head, "sha": head},
		"base":     map[string]any{"ref": pr.Base, "sha": base},
	}, nil
}
