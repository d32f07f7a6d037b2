package watcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"davwatch/internal/common"
	"davwatch/internal/webdav"
)

func TestRunOnce_NewUnchangedUpdated(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.dir("A")
	h.gw.file("A/x.txt", "t1", "hello")
	ctx := context.Background()

	// Run 1: everything is new
	report, err := h.engine.RunOnce(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewContainer(A)", "NewLeaf(A/x.txt, t1)"}, eventStrings(report.Events))
	assert.Equal(t, 2, report.Delivered)
	assert.True(t, h.store.folders["A"])
	assert.Equal(t, "t1", h.store.files["A/x.txt"].LastModified)

	// Run 2: same remote state, nothing to report
	report, err = h.engine.RunOnce(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, report.Events)
	assert.Equal(t, 1, report.Unchanged)

	// Run 3: token changes
	h.gw.touch("A/x.txt", "t2")
	report, err = h.engine.RunOnce(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"UpdatedLeaf(A/x.txt, t1, t2)"}, eventStrings(report.Events))
	assert.Equal(t, "t1", report.Events[0].OldToken)
	assert.Equal(t, "t2", report.Events[0].NewToken())
	assert.Equal(t, "t2", h.store.files["A/x.txt"].LastModified)

	assert.Len(t, h.notifier.sent, 3)
}

func TestRunOnce_NewLeafWritesBackOnce(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.file("report.pdf", "t1", "pdf")

	report, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(EventNewLeaf))
	assert.Equal(t, 1, h.store.writes)
	assert.Equal(t, []string{"report.pdf"}, h.gw.fetches)
}

func TestRunOnce_UnchangedLeafYieldsNothing(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.file("a.txt", "t1", "a")
	require.NoError(t, h.store.UpsertLeaf(context.Background(), "a.txt", "t1", "1"))
	writes := h.store.writes

	report, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, report.Events)
	assert.Equal(t, writes, h.store.writes)
	assert.Zero(t, h.notifier.calls)
}

func TestRunOnce_PartialFailureIsolation(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.file("first.txt", "t1", "1")
	h.gw.file("second.txt", "t1", "2")
	h.notifier.failIf = "first.txt"
	ctx := context.Background()

	report, err := h.engine.RunOnce(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(EventNewLeaf))
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Delivered)
	_, recorded := h.store.files["first.txt"]
	assert.False(t, recorded, "failed delivery must not be written back")
	assert.Contains(t, h.store.files, "second.txt")

	// Next run retries the failed item, and only that one
	h.notifier.failIf = ""
	report, err = h.engine.RunOnce(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewLeaf(first.txt, t1)"}, eventStrings(report.Events))
	assert.Contains(t, h.store.files, "first.txt")
}

func TestRunOnce_FailedContainerNotificationIsRetried(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.dir("A")
	h.gw.file("A/x.txt", "t1", "x")
	h.notifier.failIf = "New folder detected: A"
	ctx := context.Background()

	report, err := h.engine.RunOnce(ctx, "")
	require.NoError(t, err)
	// The subtree is still checked even though the folder notice failed
	assert.Equal(t, []string{"NewContainer(A)", "NewLeaf(A/x.txt, t1)"}, eventStrings(report.Events))
	assert.False(t, h.store.folders["A"])

	h.notifier.failIf = ""
	report, err = h.engine.RunOnce(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewContainer(A)"}, eventStrings(report.Events))
}

func TestRunOnce_CycleSafety(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.dir("A")
	h.gw.dir("A/B")
	h.gw.file("A/B/x.txt", "t1", "x")
	// B lists its grandparent and itself, A lists B twice, and x.txt appears twice
	h.gw.link("A/B", webdav.Entry{Path: "A", Kind: webdav.KindContainer})
	h.gw.link("A/B", webdav.Entry{Path: "A/B/", Kind: webdav.KindContainer})
	h.gw.link("A", webdav.Entry{Path: "A/B", Kind: webdav.KindContainer})
	h.gw.link("A", webdav.Entry{Path: "/A/B/x.txt", Kind: webdav.KindLeaf, Metadata: webdav.Metadata{LastModified: "t1"}})
	h.gw.link("A/B", webdav.Entry{Path: "", Kind: webdav.KindContainer})

	report, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewContainer(A)", "NewContainer(A/B)", "NewLeaf(A/B/x.txt, t1)"}, eventStrings(report.Events))
	for p, n := range h.gw.listCalls {
		assert.Equal(t, 1, n, "path %q listed more than once", p)
	}
}

func TestRunOnce_EquivalentPathsAreOneNode(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.dir("Kurs A")
	h.gw.link("", webdav.Entry{Path: "/Kurs A/", Kind: webdav.KindContainer})

	report, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewContainer(Kurs A)"}, eventStrings(report.Events))
}

func TestRunOnce_KnownContainersAreDescended(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.dir("A")
	h.gw.file("A/new.txt", "t1", "n")
	require.NoError(t, h.store.RecordContainer(context.Background(), "A"))

	report, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewLeaf(A/new.txt, t1)"}, eventStrings(report.Events))
	assert.Equal(t, 1, h.gw.listCalls["A"])
}

func TestRunOnce_UnreachableSubtreeIsSkipped(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.dir("A")
	h.gw.file("A/hidden.txt", "t1", "h")
	h.gw.dir("B")
	h.gw.file("B/visible.txt", "t1", "v")
	h.gw.failList["A"] = true
	// pre-record A so the only A event is the unreachable one
	require.NoError(t, h.store.RecordContainer(context.Background(), "A"))
	require.NoError(t, h.store.RecordContainer(context.Background(), "B"))

	report, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Unreachable(A)", "NewLeaf(B/visible.txt, t1)"}, eventStrings(report.Events))
	assert.True(t, errors.Is(report.Events[0].Err, common.ErrUnreachable))
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 1, report.Delivered)
}

func TestRunOnce_UnreachableRoot(t *testing.T) {
	h := newHarness("courses", EngineOptions{})
	h.gw.failList["courses"] = true

	report, err := h.engine.RunOnce(context.Background(), "courses")
	require.NoError(t, err)
	assert.Equal(t, []string{"Unreachable(courses)"}, eventStrings(report.Events))
	assert.Zero(t, h.notifier.calls)
}

func TestRunOnce_FetchesMetadataWhenListingHasNoToken(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.link("", webdav.Entry{Path: "a.txt", Kind: webdav.KindLeaf})
	h.gw.link("", webdav.Entry{Path: "b.txt", Kind: webdav.KindLeaf})
	h.gw.heads["a.txt"] = webdav.Metadata{LastModified: "from-head", Size: "7"}

	report, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewLeaf(a.txt, from-head)", "Unreachable(b.txt)"}, eventStrings(report.Events))
	assert.Equal(t, "7", h.store.files["a.txt"].Size)
}

func TestRunOnce_RootIsScopedAndNotNotified(t *testing.T) {
	h := newHarness("/courses/", EngineOptions{})
	h.gw.dir("courses/A")
	h.gw.dir("other")
	// a listing edge that escapes the root is ignored
	h.gw.link("courses/A", webdav.Entry{Path: "other", Kind: webdav.KindContainer})

	report, err := h.engine.RunOnce(context.Background(), "courses")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewContainer(courses/A)"}, eventStrings(report.Events))
	assert.Equal(t, "courses", report.Root)
	assert.Zero(t, h.gw.listCalls["other"])
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "New folder detected: A\nParent: Root", h.notifier.sent[0].Text)
}

func TestRunOnce_StoreReadFailureAbortsRun(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.file("a.txt", "t1", "a")
	h.store.failRead = true

	report, err := h.engine.RunOnce(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrStore))
	require.NotNil(t, report)
	assert.Zero(t, h.notifier.calls)
}

func TestRunOnce_StoreWriteFailureAbortsRun(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.file("a.txt", "t1", "a")
	h.gw.file("b.txt", "t1", "b")
	h.store.failAll = true

	report, err := h.engine.RunOnce(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrStore))
	// the first delivery happened, the run stopped at its write-back
	assert.Equal(t, 1, h.notifier.calls)
	assert.Len(t, report.Events, 1)
}

func TestRunOnce_Filter(t *testing.T) {
	h := newHarness("", EngineOptions{Filter: NewFilter([]string{"*.tmp", "Archiv", "# comment", ""})})
	h.gw.file("keep.pdf", "t1", "k")
	h.gw.file("scratch.tmp", "t1", "s")
	h.gw.dir("Archiv")
	h.gw.file("Archiv/old.pdf", "t1", "o")

	report, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewLeaf(keep.pdf, t1)"}, eventStrings(report.Events))
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, h.gw.listCalls["Archiv"])
}

func TestRunOnce_DepthLimit(t *testing.T) {
	h := newHarness("", EngineOptions{MaxDepth: 2})
	h.gw.dir("a")
	h.gw.dir("a/b")
	h.gw.dir("a/b/c")
	h.gw.file("a/b/c/deep.txt", "t1", "d")

	report, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewContainer(a)", "NewContainer(a/b)", "NewContainer(a/b/c)"}, eventStrings(report.Events))
	assert.Equal(t, 1, report.DepthLimited)
	assert.Zero(t, h.gw.listCalls["a/b/c"])
}

func TestRunOnce_GatewayOrderIsPreserved(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.dir("z")
	h.gw.dir("a")
	h.gw.file("z/1", "t", "")
	h.gw.file("a/1", "t", "")

	report, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"NewContainer(z)", "NewContainer(a)", "NewLeaf(z/1, t)", "NewLeaf(a/1, t)"}, eventStrings(report.Events))
}

func TestRunOnce_Cancelled(t *testing.T) {
	h := newHarness("", EngineOptions{})
	h.gw.file("a.txt", "t1", "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.engine.RunOnce(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Events)
}

func TestRunOnce_ReportMetadata(t *testing.T) {
	h := newHarness("", EngineOptions{})
	a, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)
	b, err := h.engine.RunOnce(context.Background(), "")
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 1, a.Listed)
	assert.False(t, a.Started.IsZero())
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "new_container", EventNewContainer.String())
	assert.Equal(t, "unreachable", EventUnreachable.String())
	assert.Equal(t, "EventKind(0)", EventKind(0).String())
}
