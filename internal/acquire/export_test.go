package acquire

var LocateArtifact = locateArtifact
