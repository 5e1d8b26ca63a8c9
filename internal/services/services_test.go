package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/internal/models"
	"github.com/anonto42/circle/backend/internal/repositories/memory"
)

type env struct {
	store    *memory.Store
	users    *UserService
	follows  *FollowService
	posts    *PostService
	comments *CommentService
}

func newEnv() *env {
	s := memory.New()
	return &env{
		store:    s,
		users:    NewUserService(s),
		follows:  NewFollowService(s, s),
		posts:    NewPostService(s, s),
		comments: NewCommentService(s, s, s),
	}
}

func (e *env) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com"}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u
}

func (e *env) post(t *testing.T, author *models.User, content string) *models.Post {
	t.Helper()
	p, err := e.posts.Create(context.Background(), author.ID, models.CreatePostRequest{Content: content})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func wantKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperrors.KindOf(err); got != kind {
		t.Fatalf("error kind = %s (%v), want %s", got, err, kind)
	}
}

func ptr[T any](v T) *T { return &v }

// ---- follow graph ----

func TestFollow_Errors(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	b := e.user(t, "bob")

	if err := e.follows.Follow(ctx, a.ID, a.ID); !errors.Is(err, apperrors.ErrSelfFollow) {
		t.Errorf("self follow: got %v", err)
	}
	wantKind(t, e.follows.Follow(ctx, a.ID, "missing"), apperrors.KindNotFound)

	if err := e.follows.Follow(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("first follow: %v", err)
	}
	if err := e.follows.Follow(ctx, a.ID, b.ID); !errors.Is(err, apperrors.ErrAlreadyFollowing) {
		t.Errorf("second follow: got %v", err)
	}

	gotA, _ := e.store.GetUserByID(ctx, a.ID)
	gotB, _ := e.store.GetUserByID(ctx, b.ID)
	if len(gotA.Following) != 1 || len(gotB.Followers) != 1 {
		t.Errorf("arrays duplicated: following=%v followers=%v", gotA.Following, gotB.Followers)
	}
}

func TestFollow_SelfCheckedBeforeExistence(t *testing.T) {
	e := newEnv()
	err := e.follows.Follow(context.Background(), "ghost", "ghost")
	if !errors.Is(err, apperrors.ErrSelfFollow) {
		t.Errorf("got %v, want self-follow conflict", err)
	}
}

func TestFollowUnfollow_RestoresState(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	b := e.user(t, "bob")

	if err := e.follows.Follow(ctx, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := e.follows.Unfollow(ctx, a.ID, b.ID); err != nil {
			t.Fatalf("unfollow #%d: %v", i+1, err)
		}
	}

	gotA, _ := e.store.GetUserByID(ctx, a.ID)
	gotB, _ := e.store.GetUserByID(ctx, b.ID)
	if len(gotA.Following) != 0 || len(gotA.Followers) != 0 || len(gotB.Followers) != 0 || len(gotB.Following) != 0 {
		t.Errorf("arrays not restored: a=%v/%v b=%v/%v", gotA.Followers, gotA.Following, gotB.Followers, gotB.Following)
	}
	if edges, _ := e.store.GetFollowingIDs(ctx, a.ID); len(edges) != 0 {
		t.Errorf("edges left: %v", edges)
	}
}

func TestRepair_FixesDrift(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	b := e.user(t, "bob")
	c := e.user(t, "carol")
	_ = e.follows.Follow(ctx, a.ID, b.ID)
	_ = e.follows.Follow(ctx, c.ID, b.ID)

	if err := e.store.SetGraph(b.ID, []string{a.ID, a.ID}, []string{c.ID}); err != nil {
		t.Fatal(err)
	}

	report, err := e.follows.Repair(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.UsersScanned != 3 || report.UsersRepaired != 1 {
		t.Errorf("report = %+v", report)
	}

	gotB, _ := e.store.GetUserByID(ctx, b.ID)
	if len(gotB.Followers) != 2 || len(gotB.Following) != 0 {
		t.Errorf("bob after repair: followers=%v following=%v", gotB.Followers, gotB.Following)
	}

	again, _ := e.follows.Repair(ctx)
	if again.UsersRepaired != 0 {
		t.Errorf("second pass repaired %d users", again.UsersRepaired)
	}
}

// ---- profiles ----

func TestGetProfile_ExpandsGraph(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	b := e.user(t, "bob")
	_ = e.follows.Follow(ctx, a.ID, b.ID)

	profile, err := e.users.GetProfile(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(profile.Followers) != 1 || profile.Followers[0].Username != "alice" {
		t.Errorf("followers = %+v", profile.Followers)
	}

	_, err = e.users.GetProfile(ctx, "missing")
	wantKind(t, err, apperrors.KindNotFound)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	e.user(t, "bob")

	got, err := e.users.UpdateProfile(ctx, a.ID, models.UpdateProfileRequest{Bio: ptr("hi there")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Bio != "hi there" || got.Username != "alice" {
		t.Errorf("got %+v", got)
	}

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'x'
	}
	_, err = e.users.UpdateProfile(ctx, a.ID, models.UpdateProfileRequest{Bio: ptr(string(long))})
	wantKind(t, err, apperrors.KindValidation)

	_, err = e.users.UpdateProfile(ctx, a.ID, models.UpdateProfileRequest{Username: ptr("bob")})
	wantKind(t, err, apperrors.KindConflict)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	e.user(t, "malik")
	e.user(t, "bob")

	got, err := e.users.Search(ctx, a.ID, "  LI ")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Username != "malik" {
		t.Errorf("got %+v", got)
	}

	_, err = e.users.Search(ctx, a.ID, "   ")
	wantKind(t, err, apperrors.KindValidation)
}

func TestSearch_CapsResults(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	for i := 0; i < SearchLimit+2; i++ {
		e.user(t, fmt.Sprintf("alina%02d", i))
	}

	got, err := e.users.Search(ctx, a.ID, "ali")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != SearchLimit {
		t.Fatalf("len = %d, want %d", len(got), SearchLimit)
	}
	for _, u := range got {
		if u.ID == a.ID {
			t.Error("requester included in results")
		}
	}
}

// ---- posts and feed ----

func TestFeed_Pagination(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	viewer := e.user(t, "viewer")
	author := e.user(t, "author")
	stranger := e.user(t, "stranger")
	_ = e.follows.Follow(ctx, viewer.ID, author.ID)

	for i := 0; i < 25; i++ {
		e.post(t, author, fmt.Sprintf("post %d", i))
	}
	e.post(t, stranger, "not in scope")

	page1, err := e.posts.Feed(ctx, viewer.ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1.Posts) != 10 || page1.TotalPages != 3 || page1.Total != 25 || page1.CurrentPage != 1 {
		t.Fatalf("page1: %d posts, totalPages=%d total=%d", len(page1.Posts), page1.TotalPages, page1.Total)
	}
	if page1.Posts[0].Content != "post 24" || page1.Posts[9].Content != "post 15" {
		t.Errorf("page1 order: first=%q last=%q", page1.Posts[0].Content, page1.Posts[9].Content)
	}
	if page1.Posts[0].Author == nil || page1.Posts[0].Author.Username != "author" {
		t.Errorf("author summary missing: %+v", page1.Posts[0].Author)
	}

	page3, _ := e.posts.Feed(ctx, viewer.ID, 3, 10)
	if len(page3.Posts) != 5 || page3.Posts[4].Content != "post 0" {
		t.Errorf("page3: %d posts", len(page3.Posts))
	}
}

func TestFeed_ClampsParameters(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	v := e.user(t, "viewer")
	e.post(t, v, "own post")

	page, err := e.posts.Feed(ctx, v.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.CurrentPage != 1 || page.TotalPages != 1 || len(page.Posts) != 1 {
		t.Errorf("page = %+v", page)
	}

	empty, _ := e.posts.Feed(ctx, e.user(t, "nobody").ID, 1, 500)
	if empty.Total != 0 || empty.TotalPages != 0 || len(empty.Posts) != 0 {
		t.Errorf("empty feed = %+v", empty)
	}
}

func TestFeed_PageBeyondEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	v := e.user(t, "viewer")
	for i := 0; i < 3; i++ {
		e.post(t, v, fmt.Sprintf("post %d", i))
	}

	last, err := e.posts.Feed(ctx, v.ID, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(last.Posts) != 1 || last.Posts[0].Content != "post 0" || last.TotalPages != 2 {
		t.Errorf("last page = %+v", last)
	}

	for _, page := range []int{3, math.MaxInt64 / 40, math.MaxInt} {
		got, err := e.posts.Feed(ctx, v.ID, page, MaxFeedLimit)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if len(got.Posts) != 0 || got.Total != 3 || got.TotalPages != 1 || got.CurrentPage != page {
			t.Errorf("page %d = %+v", page, got)
		}
	}
}

func TestLegacyMediaShim(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")

	legacy := &models.Post{UserID: a.ID, Content: "old", Image: "http://img/cat.png"}
	bare := &models.Post{UserID: a.ID, Content: "bare"}
	_ = e.store.CreatePost(ctx, legacy)
	_ = e.store.CreatePost(ctx, bare)

	got, err := e.posts.Get(ctx, legacy.ID.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if got.Media == nil || *got.Media != (models.Media{URL: "http://img/cat.png", Kind: models.MediaImage}) {
		t.Errorf("legacy media = %+v", got.Media)
	}

	got, _ = e.posts.Get(ctx, bare.ID.Hex())
	if got.Media == nil || *got.Media != (models.Media{URL: "", Kind: models.MediaNone}) {
		t.Errorf("bare media = %+v", got.Media)
	}

	feed, _ := e.posts.Feed(ctx, a.ID, 1, 10)
	for _, p := range feed.Posts {
		if p.Media == nil || p.Media.Kind == "" {
			t.Errorf("feed post %q not normalized", p.Content)
		}
	}
}

func TestCreate_Media(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")

	p, err := e.posts.Create(ctx, a.ID, models.CreatePostRequest{
		Content: "clip",
		Media:   &models.MediaInput{URL: "http://v/1.mp4", Kind: models.MediaVideo},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Media.Kind != models.MediaVideo || p.LikesCount != 0 || p.Author.Username != "alice" {
		t.Errorf("post = %+v", p)
	}

	p, _ = e.posts.Create(ctx, a.ID, models.CreatePostRequest{Content: "pic", Image: "http://img/1.png"})
	if p.Media.Kind != models.MediaImage || p.Media.URL != "http://img/1.png" {
		t.Errorf("legacy create media = %+v", p.Media)
	}

	_, err = e.posts.Create(ctx, a.ID, models.CreatePostRequest{Content: "   "})
	wantKind(t, err, apperrors.KindValidation)

	_, err = e.posts.Create(ctx, a.ID, models.CreatePostRequest{
		Content: "x", Media: &models.MediaInput{Kind: models.MediaImage},
	})
	wantKind(t, err, apperrors.KindValidation)
}

func TestUpdate_Semantics(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	p, _ := e.posts.Create(ctx, a.ID, models.CreatePostRequest{Content: "original", Image: "http://img/1.png"})
	id := p.ID.Hex()

	got, err := e.posts.Update(ctx, a.ID, id, models.UpdatePostRequest{Content: ptr("")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "original" || got.Media.Kind != models.MediaImage {
		t.Errorf("empty content should keep old values: %+v", got)
	}

	got, _ = e.posts.Update(ctx, a.ID, id, models.UpdatePostRequest{Image: ptr("")})
	if got.Media.Kind != models.MediaNone || got.Media.URL != "" {
		t.Errorf("clearing legacy image: %+v", got.Media)
	}

	got, _ = e.posts.Update(ctx, a.ID, id, models.UpdatePostRequest{
		Content: ptr("edited"),
		Media:   &models.MediaInput{URL: "http://v/2.mov", Kind: models.MediaVideo},
		Image:   ptr("http://ignored.png"),
	})
	if got.Content != "edited" || got.Media.Kind != models.MediaVideo || got.Media.URL != "http://v/2.mov" {
		t.Errorf("structured media should win: %+v", got)
	}
}

func TestOwnership(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	owner := e.user(t, "owner")
	other := e.user(t, "other")
	p := e.post(t, owner, "mine")
	id := p.ID.Hex()

	_, err := e.posts.Update(ctx, other.ID, id, models.UpdatePostRequest{Content: ptr("hijack")})
	wantKind(t, err, apperrors.KindForbidden)
	wantKind(t, e.posts.Delete(ctx, other.ID, id), apperrors.KindForbidden)

	if _, err := e.posts.Update(ctx, owner.ID, id, models.UpdatePostRequest{Content: ptr("still mine")}); err != nil {
		t.Errorf("owner update: %v", err)
	}
	if err := e.posts.Delete(ctx, owner.ID, id); err != nil {
		t.Errorf("owner delete: %v", err)
	}
	wantKind(t, e.posts.Delete(ctx, owner.ID, id), apperrors.KindNotFound)
	_, err = e.posts.Get(ctx, id)
	wantKind(t, err, apperrors.KindNotFound)
}

func TestEndToEnd_FollowFeedLike(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	b := e.user(t, "bob")

	if err := e.follows.Follow(ctx, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	p := e.post(t, b, "hello")

	feed, err := e.posts.Feed(ctx, a.ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed.Posts) != 1 || feed.Posts[0].ID != p.ID {
		t.Fatalf("feed = %+v", feed.Posts)
	}

	res, err := e.posts.ToggleLike(ctx, a.ID, p.ID.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if res.Likes != 1 || !res.Liked {
		t.Errorf("first like = %+v", res)
	}
	res, _ = e.posts.ToggleLike(ctx, a.ID, p.ID.Hex())
	if res.Likes != 0 || res.Liked {
		t.Errorf("second like = %+v", res)
	}

	_, err = e.posts.ToggleLike(ctx, a.ID, "000000000000000000000000")
	wantKind(t, err, apperrors.KindNotFound)
}

func TestLikesCountMatchesSet(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	author := e.user(t, "author")
	p := e.post(t, author, "popular")
	id := p.ID.Hex()

	likers := []string{"u1", "u2", "u3", "u2", "u4", "u1", "u1"}
	for _, u := range likers {
		if _, err := e.posts.ToggleLike(ctx, u, id); err != nil {
			t.Fatal(err)
		}
		got, _ := e.posts.Get(ctx, id)
		if got.LikesCount != len(got.Likes) {
			t.Fatalf("likesCount=%d len(likes)=%d after %s", got.LikesCount, len(got.Likes), u)
		}
	}
	_, _ = e.posts.Update(ctx, author.ID, id, models.UpdatePostRequest{Content: ptr("edited")})
	got, _ := e.posts.Get(ctx, id)
	if got.LikesCount != 3 || len(got.Likes) != 3 {
		t.Errorf("final likes = %v (count %d)", got.Likes, got.LikesCount)
	}
}

// ---- comments ----

func TestComments_Lifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	author := e.user(t, "author")
	commenter := e.user(t, "commenter")
	p := e.post(t, author, "discuss")
	postID := p.ID.Hex()

	first, err := e.comments.Add(ctx, commenter.ID, postID, models.CreateCommentRequest{Text: "first"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Author == nil || first.Author.Username != "commenter" {
		t.Errorf("author = %+v", first.Author)
	}
	_, _ = e.comments.Add(ctx, author.ID, postID, models.CreateCommentRequest{Text: "second"})

	list, _ := e.comments.List(ctx, postID)
	if len(list) != 2 || list[0].Text != "second" || list[1].Text != "first" {
		t.Fatalf("list not newest first: %+v", list)
	}
	got, _ := e.posts.Get(ctx, postID)
	if got.CommentsCount != 2 {
		t.Errorf("commentsCount = %d", got.CommentsCount)
	}

	wantKind(t, e.comments.Delete(ctx, author.ID, first.ID.Hex()), apperrors.KindForbidden)
	if err := e.comments.Delete(ctx, commenter.ID, first.ID.Hex()); err != nil {
		t.Fatal(err)
	}
	wantKind(t, e.comments.Delete(ctx, commenter.ID, first.ID.Hex()), apperrors.KindNotFound)

	got, _ = e.posts.Get(ctx, postID)
	if got.CommentsCount != 1 {
		t.Errorf("commentsCount after delete = %d", got.CommentsCount)
	}
}

func TestComments_Validation(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	p := e.post(t, a, "x")

	_, err := e.comments.Add(ctx, a.ID, p.ID.Hex(), models.CreateCommentRequest{Text: "  "})
	wantKind(t, err, apperrors.KindValidation)
	_, err = e.comments.Add(ctx, a.ID, "000000000000000000000000", models.CreateCommentRequest{Text: "hi"})
	wantKind(t, err, apperrors.KindNotFound)
}

func TestDeletePost_RemovesComments(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	b := e.user(t, "bob")
	p := e.post(t, a, "short lived")
	postID := p.ID.Hex()

	var ids []string
	for i := 0; i < 3; i++ {
		c, _ := e.comments.Add(ctx, b.ID, postID, models.CreateCommentRequest{Text: fmt.Sprint(i)})
		ids = append(ids, c.ID.Hex())
	}

	if err := e.posts.Delete(ctx, a.ID, postID); err != nil {
		t.Fatal(err)
	}
	list, err := e.comments.List(ctx, postID)
	if err != nil {
		t.Fatalf("listing comments of deleted post: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("comments survived: %d", len(list))
	}
	for _, id := range ids {
		if _, err := e.store.GetCommentByID(ctx, id); err == nil {
			t.Errorf("comment %s still resolvable", id)
		}
	}
}

func TestBackfillMedia(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a := e.user(t, "alice")
	_ = e.store.CreatePost(ctx, &models.Post{UserID: a.ID, Content: "old", Image: "http://img/1.png"})
	e.post(t, a, "new")

	report, err := e.posts.BackfillMedia(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalPosts != 2 || report.FixedPosts != 1 {
		t.Errorf("report = %+v", report)
	}
}
