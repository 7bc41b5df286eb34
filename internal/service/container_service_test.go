package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/metrics"
)

func newContainerFixture(t *testing.T) (*ContainerService, *MockContainerRepository, *MockFileRepository, *fakeBackend, *metrics.Metrics) {
	t.Helper()
	containers := NewMockContainerRepository()
	files := NewMockFileRepository()
	remote := newFakeBackend()
	m := metrics.New(prometheus.NewRegistry())
	svc := NewContainerService(containers, files, remote, m, zerolog.Nop())
	return svc, containers, files, remote, m
}

func TestContainerService_Create(t *testing.T) {
	owner := testUser(42)

	t.Run("success", func(t *testing.T) {
		svc, containers, _, remote, _ := newContainerFixture(t)

		out, err := svc.Create(context.Background(), CreateContainerInput{Caller: owner, ContainerID: "work"})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, out.Container.Status)
		assert.Equal(t, domain.DefaultTariff().StorageQuota, out.Limits.Storage.Limit)
		assert.Equal(t, domain.StatusActive, containers.containers["work"].Status)
		assert.True(t, remote.containers["work"])
	})

	t.Run("remote failure rolls back", func(t *testing.T) {
		svc, containers, _, remote, m := newContainerFixture(t)
		remote.createContainerErr = serviceError("create_container", 500)

		_, err := svc.Create(context.Background(), CreateContainerInput{Caller: owner, ContainerID: "work"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrRemoteService)

		assert.NotContains(t, containers.containers, "work")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RollbacksTotal.WithLabelValues("container", "success")))

		got, err := svc.Get(context.Background(), owner, "work")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate id", func(t *testing.T) {
		svc, containers, _, remote, _ := newContainerFixture(t)
		activeContainer(containers, remote, "work", owner.ID, domain.DefaultTariff())

		_, err := svc.Create(context.Background(), CreateContainerInput{Caller: owner, ContainerID: "work"})
		assert.ErrorIs(t, err, domain.ErrContainerAlreadyExists)
		assert.Equal(t, 0, remote.count("create_container"))
	})

	t.Run("invalid tariff never reaches the store", func(t *testing.T) {
		svc, containers, _, remote, _ := newContainerFixture(t)
		tariff := domain.Tariff{MemoryLimit: 0, StorageQuota: domain.MiB, FileLimit: 1}

		_, err := svc.Create(context.Background(), CreateContainerInput{Caller: owner, ContainerID: "work", Tariff: &tariff})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, 0, containers.creates)
		assert.Equal(t, 0, remote.count("create_container"))
	})

	t.Run("unauthenticated", func(t *testing.T) {
		svc, containers, _, _, _ := newContainerFixture(t)

		_, err := svc.Create(context.Background(), CreateContainerInput{ContainerID: "work"})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		assert.Equal(t, 0, containers.creates)
	})
}

func TestContainerService_Get(t *testing.T) {
	owner := testUser(42)
	stranger := testUser(7)

	tests := []struct {
		name    string
		caller  *domain.User
		setup   func(*MockContainerRepository)
		wantErr error
	}{
		{
			name:   "owner reads active container",
			caller: owner,
			setup: func(r *MockContainerRepository) {
				activeContainer(r, nil, "work", owner.ID, domain.DefaultTariff())
			},
		},
		{
			name:    "absent",
			caller:  owner,
			setup:   func(*MockContainerRepository) {},
			wantErr: domain.ErrContainerNotFound,
		},
		{
			name:   "pending is hidden",
			caller: owner,
			setup: func(r *MockContainerRepository) {
				r.containers["work"] = domain.NewContainer("work", owner.ID, domain.DefaultTariff())
			},
			wantErr: domain.ErrContainerNotFound,
		},
		{
			name:   "stranger is denied",
			caller: stranger,
			setup: func(r *MockContainerRepository) {
				activeContainer(r, nil, "work", owner.ID, domain.DefaultTariff())
			},
			wantErr: domain.ErrForbidden,
		},
		{
			name:    "no caller",
			caller:  nil,
			setup:   func(*MockContainerRepository) {},
			wantErr: domain.ErrUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, containers, _, _, _ := newContainerFixture(t)
			tt.setup(containers)

			got, err := svc.Get(context.Background(), tt.caller, "work")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "work", got.ID)
		})
	}
}

func TestContainerService_AdminBypassesOwnership(t *testing.T) {
	svc, containers, _, _, _ := newContainerFixture(t)
	activeContainer(containers, nil, "work", 42, domain.DefaultTariff())

	admin := testUser(1)
	admin.IsAdmin = true

	got, err := svc.Get(context.Background(), admin, "work")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)
}

func TestContainerService_List(t *testing.T) {
	svc, containers, _, _, _ := newContainerFixture(t)
	owner := testUser(42)

	older := activeContainer(containers, nil, "a", owner.ID, domain.DefaultTariff())
	older.CreatedAt = time.Now().Add(-time.Hour)
	activeContainer(containers, nil, "b", owner.ID, domain.DefaultTariff())
	containers.containers["pending"] = domain.NewContainer("pending", owner.ID, domain.DefaultTariff())
	activeContainer(containers, nil, "other", 7, domain.DefaultTariff())

	list, err := svc.List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	first, err := svc.Resolve(context.Background(), owner, "")
	require.NoError(t, err)
	assert.Equal(t, "a", first.ID)

	_, err = svc.Resolve(context.Background(), testUser(99), "")
	assert.ErrorIs(t, err, domain.ErrNoContainers)
}

func TestContainerService_Delete(t *testing.T) {
	owner := testUser(42)

	t.Run("twice", func(t *testing.T) {
		svc, containers, files, remote, _ := newContainerFixture(t)
		activeContainer(containers, remote, "work", owner.ID, domain.DefaultTariff())

		f := domain.NewFile("f1", "work", owner.ID, "a.txt", 3, "text/plain")
		f.Status = domain.StatusActive
		files.files[f.ID] = f
		remote.files["work"+f.RemotePath()] = "abc"

		require.NoError(t, svc.Delete(context.Background(), owner, "work"))
		assert.Empty(t, files.files)
		assert.Empty(t, remote.files)
		assert.False(t, remote.containers["work"])

		err := svc.Delete(context.Background(), owner, "work")
		assert.ErrorIs(t, err, domain.ErrContainerNotFound)
	})

	t.Run("remote failure keeps record", func(t *testing.T) {
		svc, containers, _, remote, _ := newContainerFixture(t)
		activeContainer(containers, remote, "work", owner.ID, domain.DefaultTariff())
		remote.deleteContainerErr = serviceError("delete_container", 503)

		err := svc.Delete(context.Background(), owner, "work")
		assert.ErrorIs(t, err, domain.ErrRemoteService)
		assert.Contains(t, containers.containers, "work")
	})

	t.Run("remote already gone", func(t *testing.T) {
		svc, containers, _, _, _ := newContainerFixture(t)
		activeContainer(containers, nil, "work", owner.ID, domain.DefaultTariff())

		require.NoError(t, svc.Delete(context.Background(), owner, "work"))
		assert.NotContains(t, containers.containers, "work")
	})

	t.Run("stranger", func(t *testing.T) {
		svc, containers, _, remote, _ := newContainerFixture(t)
		activeContainer(containers, remote, "work", owner.ID, domain.DefaultTariff())

		err := svc.Delete(context.Background(), testUser(7), "work")
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Equal(t, 0, remote.count("delete_container"))
	})
}

func TestContainerService_CheckLimits(t *testing.T) {
	svc, containers, files, _, _ := newContainerFixture(t)
	activeContainer(containers, nil, "work", 42, domain.Tariff{MemoryLimit: 512, StorageQuota: 100, FileLimit: 4})

	files.files["a"] = domain.NewFile("a", "work", 42, "a", 30, "text/plain")
	files.files["b"] = domain.NewFile("b", "work", 42, "b", 20, "text/plain")

	limits, err := svc.CheckLimits(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, int64(50), limits.Storage.Used)
	assert.InDelta(t, 50.0, limits.Storage.UsagePercent, 0.001)
	assert.Equal(t, int64(2), limits.Files.Used)

	_, err = svc.CheckLimits(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
