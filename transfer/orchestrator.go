/***************************************************************
 *
 * Copyright (C) 2025, Skyhook Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package transfer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/eodiscover/skyhook/auth"
	"github.com/eodiscover/skyhook/bulkcopy"
	"github.com/eodiscover/skyhook/catalog"
	"github.com/eodiscover/skyhook/store"
)

// revokeTimeout bounds the temporary-credential cleanup call.
const revokeTimeout = 30 * time.Second

type (
	// TokenSource supplies bearer tokens for the batch.  Refresh must be
	// safe for concurrent use; implementations serialize renewals.
	TokenSource interface {
		Token(ctx context.Context) (string, error)
		Refresh(ctx context.Context) (string, error)
	}

	// CredentialIssuer acquires and revokes temporary object-store
	// credentials.
	CredentialIssuer interface {
		Acquire(ctx context.Context, bearer string) (auth.TempCredential, error)
		Revoke(ctx context.Context, bearer, accessID string) error
	}

	// ObjectStore is the slice of the store client the orchestrator uses.
	ObjectStore interface {
		Probe(ctx context.Context, prefix string) error
		ListPrefix(ctx context.Context, prefix string) ([]store.ObjectInfo, error)
		Fetch(ctx context.Context, key, prefix, destDir string) (int64, error)
	}

	// StoreFactory constructs an object-store client from a temporary
	// credential.
	StoreFactory func(ctx context.Context, cred auth.TempCredential) (ObjectStore, error)

	// Mediator performs catalog-mediated transfers: whole products and,
	// for mid-batch direct-path fallback, individual objects.
	Mediator interface {
		DownloadProduct(ctx context.Context, rec catalog.ProductRecord, destDir, bearer string) (string, error)
		DownloadObject(ctx context.Context, rec catalog.ProductRecord, relPath, destDir, bearer string) error
	}

	// BulkCopier mirrors a whole store prefix to disk via the external
	// bulk-copy utility.
	BulkCopier interface {
		CopyPrefix(ctx context.Context, storeURL, destDir, accessID, secret string, lineFn func(string)) error
	}

	// Orchestrator drives the end-to-end transfer of one or many products:
	// credential acquisition, path selection, transfer, validation, retry,
	// fallback, and temporary-credential cleanup.
	Orchestrator struct {
		tokens       TokenSource
		issuer       CredentialIssuer
		newStore     StoreFactory
		mediator     Mediator
		bulk         BulkCopier
		selectPath   func(token string) PathKind
		outputDir    string
		retryCeiling int
		workers      int
		validate     bool
	}

	// Option customizes an Orchestrator at construction time.
	Option func(*Orchestrator)
)

// WithOutputDir sets the directory product artifacts are written under.
func WithOutputDir(dir string) Option {
	return func(o *Orchestrator) { o.outputDir = dir }
}

// WithRetryCeiling bounds mediated transfer attempts per task.
func WithRetryCeiling(n int) Option {
	return func(o *Orchestrator) { o.retryCeiling = n }
}

// WithWorkers bounds how many tasks run concurrently.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithValidation enables the post-transfer completion-marker check.
func WithValidation(enable bool) Option {
	return func(o *Orchestrator) { o.validate = enable }
}

// WithCredentialIssuer overrides the temporary-credential endpoint client.
func WithCredentialIssuer(issuer CredentialIssuer) Option {
	return func(o *Orchestrator) { o.issuer = issuer }
}

// WithStoreFactory overrides how object-store clients are constructed.
func WithStoreFactory(factory StoreFactory) Option {
	return func(o *Orchestrator) { o.newStore = factory }
}

// WithMediator overrides the catalog-mediated downloader.
func WithMediator(m Mediator) Option {
	return func(o *Orchestrator) { o.mediator = m }
}

// WithBulkCopier routes direct-path transfers through the external
// bulk-copy utility instead of the built-in store client.
func WithBulkCopier(b BulkCopier) Option {
	return func(o *Orchestrator) { o.bulk = b }
}

// WithPathSelector overrides delivery-path selection (used by tests).
func WithPathSelector(selector func(token string) PathKind) Option {
	return func(o *Orchestrator) { o.selectPath = selector }
}

// NewOrchestrator builds an orchestrator with configured defaults.  Only
// the token source is mandatory; everything else falls back to the real
// collaborators.
func NewOrchestrator(tokens TokenSource, options ...Option) *Orchestrator {
	o := &Orchestrator{
		tokens:       tokens,
		selectPath:   SelectPath,
		outputDir:    ".",
		retryCeiling: viper.GetInt("Transfer.RetryCeiling"),
		workers:      viper.GetInt("Transfer.Workers"),
		validate:     viper.GetBool("Transfer.ValidateAfterDownload"),
	}
	for _, option := range options {
		option(o)
	}
	if o.issuer == nil {
		o.issuer = auth.NewKeysManager()
	}
	if o.mediator == nil {
		o.mediator = NewMediatedDownloader()
	}
	if o.newStore == nil {
		o.newStore = func(ctx context.Context, cred auth.TempCredential) (ObjectStore, error) {
			return store.New(ctx, cred.AccessID, cred.Secret)
		}
	}
	if o.bulk == nil && viper.GetBool("BulkCopy.Enabled") {
		o.bulk = bulkcopy.NewRunner()
	}
	if o.retryCeiling < 1 {
		o.retryCeiling = 1
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return o
}

// DownloadBatch transfers every record and folds the outcomes into a
// summary.  Individual task failures never raise; they are visible only in
// the summary.  The two batch-level errors are an up-front authentication
// failure and a batch where no record carried a transferable reference.
func (o *Orchestrator) DownloadBatch(ctx context.Context, records []catalog.ProductRecord) (*Summary, error) {
	summary := NewSummary()
	if len(records) == 0 {
		return summary, nil
	}

	// No partial auth: a token failure here is fatal for the batch.
	bearer, err := o.tokens.Token(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "batch aborted: could not acquire bearer token")
	}

	// The selector's DirectPath answer is provisional until a probe
	// against the store succeeds.
	path := o.selectPath(bearer)
	var (
		st   ObjectStore
		cred auth.TempCredential
	)
	if path == PathDirect {
		st, cred, err = o.probeDirect(ctx, bearer, records)
		if err != nil {
			return nil, err
		}
		if st == nil {
			path = PathMediated
		}
	}

	egrp, taskCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	egrp.SetLimit(o.workers)
	for _, rec := range records {
		rec := rec
		egrp.Go(func() error {
			// Cancellation is honored between tasks: in-flight tasks
			// finish, queued ones are skipped.
			if ctx.Err() != nil {
				t := newTask(rec, path)
				t.skip("batch cancelled")
				summary.record(t)
				return nil
			}
			o.runTask(taskCtx, summary, rec, path, st, cred)
			return nil
		})
	}
	egrp.Wait() //nolint:errcheck

	// The temporary credential is revoked unconditionally once every
	// worker referencing it has finished, even if transfers failed.
	if path == PathDirect {
		o.revoke(ctx, cred)
	}

	if summary.allFailedStructural() {
		return summary, ErrAllTasksStructural
	}
	return summary, nil
}

// probeDirect acquires the temporary credential, builds the store handle,
// and probes connectivity.  A permission-denied probe is not fatal: the
// credential is revoked immediately and the batch downgrades to the
// mediated path (nil store returned).  Credential acquisition failures are
// authentication errors and abort the batch.
func (o *Orchestrator) probeDirect(ctx context.Context, bearer string, records []catalog.ProductRecord) (ObjectStore, auth.TempCredential, error) {
	cred, err := o.issuer.Acquire(ctx, bearer)
	if err != nil {
		return nil, auth.TempCredential{}, errors.Wrap(err, "batch aborted: could not acquire temporary object-store credential")
	}

	st, err := o.newStore(ctx, cred)
	if err != nil {
		o.revoke(ctx, cred)
		return nil, auth.TempCredential{}, errors.Wrap(err, "batch aborted: could not construct object-store client")
	}

	prefix := firstStorePrefix(records)
	if prefix == "" {
		// No record carries a store path; the direct path has nothing to
		// transfer, so release the credential and go mediated.
		log.Debugln("No record carries a store path; using the mediated path")
		o.revoke(ctx, cred)
		return nil, auth.TempCredential{}, nil
	}

	if err := st.Probe(ctx, prefix); err != nil {
		o.revoke(ctx, cred)
		if store.IsPermissionDenied(err) {
			log.Warnln("Object-store probe was denied; downgrading the batch to the mediated path")
			return nil, auth.TempCredential{}, nil
		}
		log.Warnln("Object-store probe failed; downgrading the batch to the mediated path:", err)
		return nil, auth.TempCredential{}, nil
	}
	return st, cred, nil
}

func (o *Orchestrator) revoke(ctx context.Context, cred auth.TempCredential) {
	if cred.AccessID == "" {
		return
	}
	// Revocation must survive batch cancellation or the temporary key pair
	// outlives the process; detach from the caller's context but keep a
	// deadline so cleanup cannot hang.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revokeTimeout)
	defer cancel()
	bearer, err := o.tokens.Token(ctx)
	if err != nil {
		log.Errorln("Could not fetch a token to revoke the temporary credential:", err)
		return
	}
	if err := o.issuer.Revoke(ctx, bearer, cred.AccessID); err != nil {
		log.Errorln("Failed to revoke temporary object-store credential:", err)
	}
}

// runTask drives one record to a terminal outcome and records it.
func (o *Orchestrator) runTask(ctx context.Context, summary *Summary, rec catalog.ProductRecord, path PathKind, st ObjectStore, cred auth.TempCredential) {
	t := newTask(rec, path)
	defer summary.record(t)

	// Resume policy: a previously finished artifact short-circuits the
	// task before any network activity.
	if done, how := alreadyComplete(o.outputDir, rec); done {
		log.Infof("Skipping %s: %s", rec.Name, how)
		t.skip(how)
		return
	}

	if rec.StorePath == "" && rec.ID == "" {
		t.fail(&StructuralError{ProductName: rec.Name})
		return
	}

	if path == PathDirect && rec.StorePath != "" {
		o.runDirect(ctx, t, st, cred)
		return
	}
	t.path = PathMediated
	o.runMediated(ctx, t)
}

// runDirect transfers every object under the product's store prefix.  Each
// object succeeds or fails independently; a permission failure partway
// through falls back to the mediated path for the remaining objects only.
func (o *Orchestrator) runDirect(ctx context.Context, t *task, st ObjectStore, cred auth.TempCredential) {
	rec := t.record
	destDir := ProductDir(o.outputDir, rec)
	_, prefix, err := store.ParseStorePath(rec.StorePath)
	if err != nil {
		t.fail(err)
		return
	}

	t.attempts = 1
	if o.bulk != nil {
		o.runBulk(ctx, t, prefix, destDir, cred)
		return
	}

	objects, err := st.ListPrefix(ctx, prefix)
	if err != nil {
		if store.IsPermissionDenied(err) {
			log.Warnf("Direct listing denied for %s; falling back to the mediated path", rec.Name)
			t.path = PathMediated
			o.runMediated(ctx, t)
			return
		}
		t.fail(err)
		return
	}
	if len(objects) == 0 {
		t.fail(errors.Errorf("no objects found under store prefix %s", prefix))
		return
	}

	for idx, obj := range objects {
		if ctx.Err() != nil {
			t.fail(errors.Wrap(ctx.Err(), "transfer cancelled"))
			return
		}
		if _, err := st.Fetch(ctx, obj.Key, prefix, destDir); err == nil {
			continue
		} else if store.IsPermissionDenied(err) {
			// Fall back for the remaining objects only; completed
			// objects are not re-fetched.
			log.Warnf("Direct fetch denied partway through %s; fetching the remaining %d object(s) via the mediated path",
				rec.Name, len(objects)-idx)
			o.fallbackObjects(ctx, t, objects[idx:], prefix, destDir)
			return
		} else {
			log.Errorf("Failed to fetch %s: %v", obj.Key, err)
			t.failedKeys = append(t.failedKeys, obj.Key)
			t.lastErr = err
		}
	}
	o.finishTree(t, rec)
}

// runBulk hands the whole prefix to the external bulk-copy utility.
func (o *Orchestrator) runBulk(ctx context.Context, t *task, prefix, destDir string, cred auth.TempCredential) {
	rec := t.record
	storeURL := "s3://" + viper.GetString("Store.Bucket") + "/" + prefix
	if err := o.bulk.CopyPrefix(ctx, storeURL, destDir, cred.AccessID, cred.Secret, nil); err != nil {
		t.fail(err)
		return
	}
	o.finishTree(t, rec)
}

// fallbackObjects fetches the given objects through the catalog's node
// hierarchy after a mid-transfer permission failure.
func (o *Orchestrator) fallbackObjects(ctx context.Context, t *task, objects []store.ObjectInfo, prefix, destDir string) {
	rec := t.record
	bearer, err := o.tokens.Token(ctx)
	if err != nil {
		t.fail(err)
		return
	}
	for _, obj := range objects {
		rel := relativeKey(obj.Key, prefix)
		if err := o.mediator.DownloadObject(ctx, rec, rel, o.outputDir, bearer); err != nil {
			log.Errorf("Mediated fallback failed for %s: %v", obj.Key, err)
			t.failedKeys = append(t.failedKeys, obj.Key)
			t.lastErr = err
		}
	}
	o.finishTree(t, rec)
}

// finishTree settles a direct-path task: any failed object fails the task
// as a whole (the failed keys are retained for reporting); otherwise the
// completion marker is written and validated.
func (o *Orchestrator) finishTree(t *task, rec catalog.ProductRecord) {
	if len(t.failedKeys) > 0 {
		t.outcome = OutcomeFailed
		return
	}
	if err := writeCompletionMarker(o.outputDir, rec); err != nil {
		t.fail(err)
		return
	}
	if o.validate && !markerExists(o.outputDir, rec) {
		t.fail(&IntegrityError{MarkerPath: MarkerPath(o.outputDir, rec)})
		return
	}
	t.succeed()
}

// runMediated attempts the catalog-mediated transfer with a bounded retry
// loop.  Every retry refreshes the bearer token first, since auth may have
// expired mid-batch.  Exhausting the ceiling fails the task with the last
// error retained.
func (o *Orchestrator) runMediated(ctx context.Context, t *task) {
	rec := t.record
	var lastErr error
	for attempt := 1; attempt <= o.retryCeiling; attempt++ {
		t.attempts = attempt
		if ctx.Err() != nil {
			t.fail(errors.Wrap(ctx.Err(), "transfer cancelled"))
			return
		}

		bearer, err := o.tokens.Token(ctx)
		if err != nil {
			lastErr = err
		} else if _, err = o.mediator.DownloadProduct(ctx, rec, o.outputDir, bearer); err == nil {
			if o.validate && !markerExists(o.outputDir, rec) {
				t.fail(&IntegrityError{MarkerPath: MarkerPath(o.outputDir, rec)})
				return
			}
			t.succeed()
			return
		} else {
			lastErr = err
			if !isRetryable(err) {
				break
			}
		}

		log.Warnf("Attempt %d/%d failed for %s: %v", attempt, o.retryCeiling, rec.Name, lastErr)
		if attempt < o.retryCeiling {
			if _, err := o.tokens.Refresh(ctx); err != nil {
				log.Errorln("Token refresh between attempts failed:", err)
			}
		}
	}
	t.fail(lastErr)
}

// firstStorePrefix returns the object prefix of the first record that
// carries a store path, used for the connectivity probe.
func firstStorePrefix(records []catalog.ProductRecord) string {
	for _, rec := range records {
		if rec.StorePath == "" {
			continue
		}
		if _, prefix, err := store.ParseStorePath(rec.StorePath); err == nil {
			return prefix
		}
	}
	return ""
}

func relativeKey(key, prefix string) string {
	rel := key
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		rel = key[len(prefix):]
	}
	for len(rel) > 0 && rel[0] == '/' {
		rel = rel[1:]
	}
	return rel
}
