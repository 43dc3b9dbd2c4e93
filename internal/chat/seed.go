package chat

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/preferences"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"github.com/dmitrijs2005/gophchat/internal/syncbus"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures/demo.yaml
var demoFixture []byte

type seedFile struct {
	Name    string `yaml:"name"`
	Mime    string `yaml:"mime"`
	Content string `yaml:"content"`
}

type seedMessage struct {
	From  string     `yaml:"from"`
	Text  string     `yaml:"text"`
	Files []seedFile `yaml:"files"`
}

type seedProfile struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

type seedData struct {
	Profiles []seedProfile `yaml:"profiles"`
	Directs  []struct {
		Between  []string      `yaml:"between"`
		Messages []seedMessage `yaml:"messages"`
	} `yaml:"directs"`
	Groups []struct {
		Title    string        `yaml:"title"`
		Owner    string        `yaml:"owner"`
		Members  []string      `yaml:"members"`
		Messages []seedMessage `yaml:"messages"`
	} `yaml:"groups"`
}

func parseSeed(data []byte) (*seedData, error) {
	var s seedData
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &s, nil
}

var seedScope = []storage.StoreName{
	storage.StoreProfiles, storage.StoreChats, storage.StoreMemberships,
	storage.StoreMessages, storage.StoreAttachments, storage.StoreBlobs,
}

// Seeded records get ids derived from the fixture, so a repeated or
// concurrent seed lands on the same rows.
var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gophchat:demo-seed"))

func seedID(parts ...string) string {
	return uuid.NewSHA1(seedNamespace, []byte(strings.Join(parts, "/"))).String()
}

// seedIDs yields seedID(prefix, 1), seedID(prefix, 2), ...
func seedIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return seedID(prefix, strconv.Itoa(n))
	}
}

func seedKey(name string) string {
	n, _ := models.NormalizeName(name)
	return strings.ToLower(n)
}

func (m seedMessage) files() []FileInput {
	files := make([]FileInput, 0, len(m.Files))
	for _, f := range m.Files {
		files = append(files, FileInput{Name: f.Name, MimeType: f.Mime, Data: []byte(f.Content)})
	}
	return files
}

// SeedDemo loads the bundled demo data once per device. It reports false when
// the data was already seeded.
func (r *Repository) SeedDemo(ctx context.Context) (bool, error) {
	return r.seed(ctx, demoFixture)
}

// seed checks the whole fixture before writing, then writes every record in
// one atomic unit. Existing profiles are matched by name, an existing group by
// owner and title, and messages already present are skipped.
func (r *Repository) seed(ctx context.Context, fixture []byte) (bool, error) {
	const op = "seed demo"

	flag, err := r.prefs.Get(ctx, preferences.KeyDemoSeeded)
	if err != nil {
		return false, r.fail(ctx, op, err)
	}
	if len(flag) > 0 {
		return false, nil
	}

	data, err := parseSeed(fixture)
	if err != nil {
		return false, common.Validation(op, err.Error())
	}
	newBytes, err := r.checkSeed(op, data)
	if err != nil {
		return false, err
	}
	if err := r.checkTotal(ctx, r.stores(), newBytes); err != nil {
		return false, err
	}

	digests := make(map[string]*models.PasswordDigest)
	for _, sp := range data.Profiles {
		if sp.Password == "" {
			continue
		}
		d, err := r.creds.Derive([]byte(sp.Password))
		if err != nil {
			return false, r.fail(ctx, op, err)
		}
		digests[seedKey(sp.Name)] = d
	}

	var uploaded []string
	created := 0
	err = r.backend.RunAtomic(ctx, seedScope, func(ctx context.Context, s storage.Stores) error {
		uploaded = uploaded[:0]
		ids, n, err := r.seedProfiles(ctx, s, data.Profiles, digests)
		if err != nil {
			return err
		}
		created = n

		for _, d := range data.Directs {
			c, err := r.seedDirect(ctx, s, ids[seedKey(d.Between[0])], ids[seedKey(d.Between[1])])
			if err != nil {
				return err
			}
			if err := r.seedMessages(ctx, s, c, d.Messages, ids, &uploaded); err != nil {
				return err
			}
		}

		for _, g := range data.Groups {
			members := make([]string, 0, len(g.Members))
			for _, name := range g.Members {
				members = append(members, ids[seedKey(name)])
			}
			c, ok, err := r.seedGroup(ctx, s, g.Title, ids[seedKey(g.Owner)], members)
			if err != nil {
				return err
			}
			if !ok {
				r.log.Debug(ctx, "seed group exists, skipping", "chat_id", c.ID)
				continue
			}
			if err := r.seedMessages(ctx, s, c, g.Messages, ids, &uploaded); err != nil {
				return err
			}
		}

		used, err := s.Attachments().TotalBytes(ctx)
		if err != nil {
			return err
		}
		if used > r.quota.MaxTotalBytes {
			return common.Validation(op, fmt.Sprintf("storage quota exceeded: demo data would use %s of %s",
				humanBytes(used), humanBytes(r.quota.MaxTotalBytes)))
		}
		return nil
	})
	if err != nil {
		if !r.backend.BlobsTransactional() {
			r.cleanupBlobs(ctx, uploaded)
		}
		return false, r.fail(ctx, op, err)
	}

	if err := r.prefs.Set(ctx, preferences.KeyDemoSeeded, []byte("1")); err != nil {
		return false, r.fail(ctx, op, err)
	}
	r.log.Info(ctx, "demo data seeded", "profiles_created", created)
	r.publish(ctx, syncbus.Profiles, syncbus.Chats, syncbus.Memberships, syncbus.Messages, syncbus.SeedCompleted)
	return true, nil
}

// checkSeed validates names, references and file sizes, returning the total
// attachment bytes the fixture carries.
func (r *Repository) checkSeed(op string, data *seedData) (int64, error) {
	known := make(map[string]struct{}, len(data.Profiles))
	for _, sp := range data.Profiles {
		if _, ok := models.NormalizeName(sp.Name); !ok {
			return 0, invalidName(op)
		}
		known[seedKey(sp.Name)] = struct{}{}
	}
	ref := func(name string) error {
		if _, ok := known[seedKey(name)]; !ok {
			return common.Validation(op, fmt.Sprintf("seed references unknown profile %q", name))
		}
		return nil
	}

	var total int64
	checkMessages := func(msgs []seedMessage) error {
		for _, m := range msgs {
			if err := ref(m.From); err != nil {
				return err
			}
			if strings.TrimSpace(m.Text) == "" && len(m.Files) == 0 {
				return common.Validation(op, fmt.Sprintf("seed message from %q is empty", m.From))
			}
			n, err := r.checkFileSizes(op, m.files())
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	}

	for _, d := range data.Directs {
		if len(d.Between) != 2 || seedKey(d.Between[0]) == seedKey(d.Between[1]) {
			return 0, common.Validation(op, "direct chat needs exactly two profiles")
		}
		for _, name := range d.Between {
			if err := ref(name); err != nil {
				return 0, err
			}
		}
		if err := checkMessages(d.Messages); err != nil {
			return 0, err
		}
	}
	for _, g := range data.Groups {
		if err := ref(g.Owner); err != nil {
			return 0, err
		}
		for _, name := range g.Members {
			if err := ref(name); err != nil {
				return 0, err
			}
		}
		if err := checkMessages(g.Messages); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// seedProfiles maps fixture names to profile ids, creating the missing ones.
func (r *Repository) seedProfiles(ctx context.Context, s storage.Stores, profiles []seedProfile, digests map[string]*models.PasswordDigest) (map[string]string, int, error) {
	all, err := s.Profiles().GetAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	existing := make(map[string]string, len(all))
	for _, p := range all {
		existing[strings.ToLower(p.Name)] = p.ID
	}

	ids := make(map[string]string, len(profiles))
	created := 0
	for _, sp := range profiles {
		k := seedKey(sp.Name)
		if id, ok := existing[k]; ok {
			ids[k] = id
			continue
		}
		name, _ := models.NormalizeName(sp.Name)
		p := r.newProfile(name)
		p.ID = seedID("profile", k)
		p.Password = digests[k]
		if err := s.Profiles().Put(ctx, p); err != nil {
			return nil, 0, err
		}
		existing[k] = p.ID
		ids[k] = p.ID
		created++
	}
	return ids, created, nil
}

func (r *Repository) seedDirect(ctx context.Context, s storage.Stores, a, b string) (*models.Chat, error) {
	key := models.DirectKey(a, b)
	c, err := s.Chats().GetByDirectKey(ctx, key)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	now := r.now()
	c = &models.Chat{
		ID:        seedID("direct", key),
		Kind:      models.ChatDirect,
		CreatedBy: a,
		CreatedAt: now,
		UpdatedAt: now,
		DirectKey: key,
	}
	if err := s.Chats().Put(ctx, c); err != nil {
		return nil, err
	}
	for i, pid := range []string{a, b} {
		role := models.RoleMember
		if i == 0 {
			role = models.RoleOwner
		}
		m := &models.Membership{ID: seedID(c.ID, "member", pid), ChatID: c.ID, ProfileID: pid, Role: role, JoinedAt: now}
		if err := s.Memberships().Put(ctx, m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// seedGroup returns the owner's group with this title, reporting false when
// it already existed.
func (r *Repository) seedGroup(ctx context.Context, s storage.Stores, title, owner string, members []string) (*models.Chat, bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = models.DefaultGroupTitle
	}

	all, err := s.Chats().GetAll(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, c := range all {
		if c.Kind == models.ChatGroup && c.CreatedBy == owner && strings.EqualFold(c.Title, title) {
			return c, false, nil
		}
	}

	now := r.now()
	c := &models.Chat{
		ID:        seedID("group", owner, strings.ToLower(title)),
		Kind:      models.ChatGroup,
		Title:     title,
		CreatedBy: owner,
		CreatedAt: now,
	}
	c.Touch(now)
	if err := s.Chats().Put(ctx, c); err != nil {
		return nil, false, err
	}
	if err := s.Memberships().Put(ctx, &models.Membership{
		ID: seedID(c.ID, "member", owner), ChatID: c.ID, ProfileID: owner, Role: models.RoleOwner, JoinedAt: now,
	}); err != nil {
		return nil, false, err
	}
	for _, id := range dedupe(members, owner) {
		if err := s.Memberships().Put(ctx, &models.Membership{
			ID: seedID(c.ID, "member", id), ChatID: c.ID, ProfileID: id, Role: models.RoleMember, JoinedAt: now,
		}); err != nil {
			return nil, false, err
		}
	}
	created := r.systemMessage(c.ID, owner, "Group created", now)
	created.ID = seedID(c.ID, "created")
	if err := s.Messages().Put(ctx, created); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// seedMessages writes the chat's fixture messages that are not stored yet.
// Keys of blobs written outside the unit are appended to uploaded.
func (r *Repository) seedMessages(ctx context.Context, s storage.Stores, c *models.Chat, msgs []seedMessage, ids map[string]string, uploaded *[]string) error {
	wrote := false
	for i, m := range msgs {
		msg, metas, blobs := r.prepareMessage(seedIDs(seedID(c.ID, "message", strconv.Itoa(i))),
			c.ID, ids[seedKey(m.From)], strings.TrimSpace(m.Text), m.files(), r.now())

		_, err := s.Messages().Get(ctx, msg.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		for j, meta := range metas {
			meta.BlobKey = fmt.Sprintf("chats/%s/%s", c.ID, r.newID())
			blobs[j].Key = meta.BlobKey
			if err := s.Blobs().PutBlob(ctx, meta.BlobKey, blobs[j].Data); err != nil {
				return err
			}
			*uploaded = append(*uploaded, meta.BlobKey)
			msg.AttachmentIDs = append(msg.AttachmentIDs, meta.ID)
		}
		if err := s.Messages().Put(ctx, msg); err != nil {
			return err
		}
		for _, meta := range metas {
			if err := s.Attachments().Put(ctx, meta); err != nil {
				return err
			}
		}
		c.Touch(msg.CreatedAt)
		wrote = true
	}
	if !wrote {
		return nil
	}
	return s.Chats().Put(ctx, c)
}
